// Package harness provides a fully wired bridge for end-to-end tests.
// Every e2e test runs against the same stack as cmd/mavbridge, with the
// vehicle link replaced by scripted fakes.
package harness

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/mavbridge/internal/api"
	"github.com/radio-control/mavbridge/internal/audit"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/link/fake"
	"github.com/radio-control/mavbridge/internal/probe"
	"github.com/radio-control/mavbridge/internal/recorder"
	"github.com/radio-control/mavbridge/internal/session"
	"github.com/radio-control/mavbridge/internal/supervisor"
	"github.com/radio-control/mavbridge/internal/vehicle"
)

// Target is the link target the harness configures.
const Target = "udpin:127.0.0.1:14550"

// Options configures the test harness
type Options struct {
	// Links are handed out by successive dials; once exhausted, dials fail.
	Links []*fake.FakeLink
	// Configure adjusts the baseline configuration.
	Configure func(*config.Config)
}

// Server represents a test server with all components wired
type Server struct {
	URL        string
	Config     *config.Store
	Vehicle    *vehicle.Vehicle
	Supervisor *supervisor.Supervisor
	Hub        *session.Hub
	Audit      *audit.Logger
	Recorder   *recorder.Recorder
	Dials      func() int
}

// NewServer creates a fully-wired test server. Everything is torn down by
// t.Cleanup.
func NewServer(t *testing.T, opts Options) *Server {
	t.Helper()
	tempDir := t.TempDir()

	cfg := config.Defaults()
	cfg.Link.Target = Target
	cfg.Link.ReceiveTimeout = 20 * time.Millisecond
	cfg.Link.IdlePoll = 10 * time.Millisecond
	cfg.Link.Backoff = config.BackoffConfig{Initial: 20 * time.Millisecond, Factor: 2, Max: 100 * time.Millisecond}
	cfg.Server.PublishInterval = 20 * time.Millisecond
	cfg.Server.StaticDir = tempDir
	cfg.Commands.Timeout = time.Second
	cfg.Audit.Dir = filepath.Join(tempDir, "logs")
	cfg.Recorder = config.RecorderConfig{Enabled: true, Path: filepath.Join(tempDir, "data", "telemetry.sqlite"), Interval: 20 * time.Millisecond}
	cfg.Video.ProbeInterval = time.Hour
	if opts.Configure != nil {
		opts.Configure(cfg)
	}
	store := config.NewStaticStore(cfg)

	var mu sync.Mutex
	dials := 0
	dialer := link.DialerFunc(func(ctx context.Context, c link.Config) (link.IVehicleLink, error) {
		mu.Lock()
		defer mu.Unlock()
		if dials >= len(opts.Links) {
			dials++
			return nil, &link.Error{Kind: link.KindTransport, Op: "dial", Err: fmt.Errorf("no vehicle at %s", c.Target)}
		}
		l := opts.Links[dials]
		dials++
		return l, nil
	})

	v := vehicle.New()
	sup := supervisor.New(store, dialer, v, nil)

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	t.Cleanup(func() { _ = auditLogger.Close() })

	rec, err := recorder.Open(cfg.Recorder.Path, nil)
	if err != nil {
		t.Fatalf("Failed to open recorder: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	executor := command.NewExecutor(v, store, nil)
	executor.SetAuditLogger(command.AuditLoggers{auditLogger, rec})

	hub := session.NewHub(nil)
	prober := probe.New(store, v, nil, nil)

	apiServer := api.NewServer(api.Deps{
		Config:    store,
		Vehicle:   v,
		Executor:  executor,
		Link:      sup,
		Hub:       hub,
		Probe:     prober,
		History:   rec,
		ListPorts: func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil },
	}, nil)
	httpServer := httptest.NewServer(apiServer.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{
		sup.Run,
		func(ctx context.Context) error { return rec.Run(ctx, v, cfg.Recorder.Interval) },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = run(ctx)
		}()
	}

	// Cleanups run in reverse: stop components before closing their sinks
	t.Cleanup(func() {
		hub.Stop()
		httpServer.Close()
		cancel()
		wg.Wait()
	})

	t.Logf("harness: %s, target %s, %d scripted links", httpServer.URL, Target, len(opts.Links))

	return &Server{
		URL:        httpServer.URL,
		Config:     store,
		Vehicle:    v,
		Supervisor: sup,
		Hub:        hub,
		Audit:      auditLogger,
		Recorder:   rec,
		Dials: func() int {
			mu.Lock()
			defer mu.Unlock()
			return dials
		},
	}
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// RoverHeartbeat is an armed ArduRover heartbeat in HOLD.
func RoverHeartbeat() *link.Heartbeat {
	vehicleType, autopilot := 10, 3
	base := uint8(128 | 1)
	custom := uint32(4)
	return &link.Heartbeat{
		SystemID:    1,
		ComponentID: 1,
		VehicleType: &vehicleType,
		Autopilot:   &autopilot,
		BaseMode:    &base,
		CustomMode:  &custom,
	}
}
