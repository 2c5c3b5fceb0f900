package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/vehicle"
)

// State is the supervisor's position in the link lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StateBackingOff
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConfigSource supplies the current configuration. It is polled, so a new
// target takes effect without restarting the supervisor.
type ConfigSource interface {
	Current() *config.Config
}

// errSuperseded ends a live session when the configured target changes.
var errSuperseded = errors.New("link target changed")

// Supervisor keeps one link to the vehicle alive: it dials, pumps decoded
// messages into the vehicle state, and reconnects with backoff after
// failures.
type Supervisor struct {
	cfg     ConfigSource
	dialer  link.Dialer
	vehicle *vehicle.Vehicle
	log     *slog.Logger

	state    atomic.Int32
	attempts atomic.Int64
}

// New creates a supervisor. A nil logger uses slog.Default().
func New(cfg ConfigSource, dialer link.Dialer, v *vehicle.Vehicle, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		vehicle: v,
		log:     logger.With("component", "supervisor"),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Attempts returns how many times a link has been dialed.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

func (s *Supervisor) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		s.log.Debug("state change", "from", prev, "to", st)
	}
}

// Run drives the link until ctx is cancelled. Link failures never escape;
// they become telemetry changes and warning entries.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	backoff := NewBackoff(s.cfg.Current().Link.Backoff)

	for {
		if ctx.Err() != nil {
			return nil
		}

		cfg := s.cfg.Current()
		target := linkConfig(cfg)

		// Idle until a target is configured
		if target.Target == "" {
			s.setState(StateIdle)
			if !sleep(ctx, cfg.Link.IdlePoll) {
				return nil
			}
			continue
		}

		s.setState(StateConnecting)
		backoff.Configure(cfg.Link.Backoff)
		s.attempts.Add(1)

		l, err := s.dialer.Dial(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("link connect failed", "target", target.Target, "error", err)
			s.vehicle.AppendWarning(reconnectWarning(err))
			if !s.backOff(ctx, backoff) {
				return nil
			}
			continue
		}

		s.vehicle.AttachLink(l)
		backoff.Reset()
		s.setState(StateLive)
		s.log.Info("link open", "target", target.Target)

		err = s.drive(ctx, l, target)
		_ = l.Close()

		switch {
		case ctx.Err() != nil:
			s.vehicle.DetachLink(l, "")
			return nil

		case errors.Is(err, errSuperseded):
			s.log.Info("link target changed, reconnecting", "previous", target.Target)
			s.vehicle.DetachLink(l, "")

		default:
			s.log.Warn("link lost", "target", target.Target, "error", err)
			s.vehicle.DetachLink(l, reconnectWarning(err))
			if !s.backOff(ctx, backoff) {
				return nil
			}
		}
	}
}

// drive receives from l until it fails, the target changes or ctx ends.
func (s *Supervisor) drive(ctx context.Context, l link.IVehicleLink, target link.Config) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cfg := s.cfg.Current()
		if next := linkConfig(cfg); next.Target != target.Target || next.Baudrate != target.Baudrate {
			return errSuperseded
		}

		msg, err := l.ReceiveNext(ctx, cfg.Link.ReceiveTimeout)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		s.vehicle.Apply(l, msg, l.ResolveMode)
	}
}

// backOff sleeps for the next backoff delay. It returns false if ctx ended.
func (s *Supervisor) backOff(ctx context.Context, b *Backoff) bool {
	s.setState(StateBackingOff)
	delay := b.Next()
	s.log.Debug("backing off", "delay", delay)
	return sleep(ctx, delay)
}

// linkConfig extracts the dial parameters from cfg.
func linkConfig(cfg *config.Config) link.Config {
	return link.Config{
		Target:           cfg.Link.Target,
		Baudrate:         cfg.Link.Baudrate,
		HeartbeatTimeout: cfg.Link.HeartbeatTimeout,
		SystemID:         cfg.Link.SystemID,
	}
}

// reconnectWarning renders a failure for the warnings log.
func reconnectWarning(err error) string {
	if link.KindOf(err) == 0 {
		err = &link.Error{Kind: link.KindTransport, Op: "connect", Err: err}
	}
	return "MAVLink reconnect: " + err.Error()
}

// sleep waits for d or ctx, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
