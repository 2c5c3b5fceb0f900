package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
)

// LinkSource exposes the live link, if any.
type LinkSource interface {
	Link() link.IVehicleLink
}

// ConfigSource supplies the current configuration.
type ConfigSource interface {
	Current() *config.Config
}

// Status is the outcome of the most recent probe cycle.
type Status struct {
	LastPingAt time.Time `json:"last_ping_at,omitzero"`
	PingErr    string    `json:"ping_error,omitempty"`

	VideoURL       string    `json:"video_url,omitempty"`
	VideoCheckedAt time.Time `json:"video_checked_at,omitzero"`
	VideoOK        bool      `json:"video_ok"`
	VideoBytes     int64     `json:"video_bytes"`
	VideoErr       string    `json:"video_error,omitempty"`
}

// Describe renders the status for humans.
func (s Status) Describe() map[string]string {
	out := map[string]string{"ping": "never", "video": "not configured"}

	switch {
	case s.PingErr != "":
		out["ping"] = "failed: " + s.PingErr
	case !s.LastPingAt.IsZero():
		out["ping"] = "sent " + humanize.Time(s.LastPingAt)
	}

	switch {
	case s.VideoURL == "":
	case s.VideoCheckedAt.IsZero():
		out["video"] = "pending"
	case s.VideoOK:
		out["video"] = fmt.Sprintf("ok, %s read %s", humanize.Bytes(uint64(s.VideoBytes)), humanize.Time(s.VideoCheckedAt))
	default:
		out["video"] = "failed: " + s.VideoErr
	}
	return out
}

// Prober runs the periodic checks.
type Prober struct {
	cfg     ConfigSource
	vehicle LinkSource
	client  *http.Client

	mu     sync.RWMutex
	status Status

	log *slog.Logger
	now func() time.Time
}

// New creates a prober. A nil client uses a client without a global timeout;
// each fetch is bounded by the probe interval instead.
func New(cfg ConfigSource, v LinkSource, client *http.Client, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:     cfg,
		vehicle: v,
		client:  client,
		log:     logger.With("component", "probe"),
		now:     time.Now,
	}
}

// Status returns the latest results.
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run probes once per video.probeInterval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	for {
		p.ProbeOnce(ctx)

		t := time.NewTimer(p.interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (p *Prober) interval() time.Duration {
	if d := p.cfg.Current().Video.ProbeInterval; d > 0 {
		return d
	}
	return 10 * time.Second
}

// ProbeOnce runs one ping and one video check.
func (p *Prober) ProbeOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.interval())
	defer cancel()

	p.ping(ctx)
	p.checkVideo(ctx)
}

// ping sends a PING through the live link, if there is one.
func (p *Prober) ping(ctx context.Context) {
	l := p.vehicle.Link()
	if l == nil {
		return
	}

	err := l.Ping(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.status.PingErr = err.Error()
		p.log.Warn("ping failed", "error", err)
		return
	}
	p.status.LastPingAt = p.now()
	p.status.PingErr = ""
}

// checkVideo reads up to video.probeBytes from the stream URL.
func (p *Prober) checkVideo(ctx context.Context) {
	video := p.cfg.Current().Video
	if video.URL == "" {
		p.mu.Lock()
		p.status.VideoURL = ""
		p.mu.Unlock()
		return
	}

	n, err := p.fetch(ctx, video.URL, int64(video.ProbeBytes))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.VideoURL = video.URL
	p.status.VideoCheckedAt = p.now()
	p.status.VideoBytes = n
	p.status.VideoOK = err == nil
	if err != nil {
		p.status.VideoErr = err.Error()
		p.log.Warn("video probe failed", "url", video.URL, "error", err)
		return
	}
	p.status.VideoErr = ""
	p.log.Debug("video probe ok", "url", video.URL, "read", humanize.Bytes(uint64(n)))
}

func (p *Prober) fetch(ctx context.Context, url string, limit int64) (int64, error) {
	if limit <= 0 {
		limit = 1024
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	// MJPEG streams never end; read only the first chunk
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, limit))
	if err != nil {
		return n, fmt.Errorf("reading stream: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("empty response")
	}
	return n, nil
}
