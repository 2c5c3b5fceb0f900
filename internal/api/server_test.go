package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/probe"
	"github.com/radio-control/mavbridge/internal/recorder"
	"github.com/radio-control/mavbridge/internal/session"
	"github.com/radio-control/mavbridge/internal/supervisor"
	"github.com/radio-control/mavbridge/internal/telemetry"
)

type staticVehicle struct {
	mu   sync.Mutex
	snap telemetry.Snapshot
}

func (v *staticVehicle) Snapshot() telemetry.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

type fakeLinkState struct {
	state    supervisor.State
	attempts int64
}

func (f fakeLinkState) State() supervisor.State { return f.state }
func (f fakeLinkState) Attempts() int64         { return f.attempts }

type fakeProbe struct{ status probe.Status }

func (f fakeProbe) Status() probe.Status { return f.status }

type fakeHistory struct {
	limits []int
	err    error
}

func (f *fakeHistory) RecentSnapshots(ctx context.Context, limit int) ([]recorder.SnapshotRow, error) {
	f.limits = append(f.limits, limit)
	return []recorder.SnapshotRow{{Connected: true}}, f.err
}

func (f *fakeHistory) RecentCommands(ctx context.Context, limit int) ([]recorder.CommandRow, error) {
	f.limits = append(f.limits, limit)
	return []recorder.CommandRow{{Action: "arm", OK: true}}, f.err
}

// MockExecutor records executed requests.
type MockExecutor struct {
	mu       sync.Mutex
	requests []command.Request
}

func (m *MockExecutor) Execute(ctx context.Context, req command.Request) command.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return command.Success
}

func (m *MockExecutor) Requests() []command.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]command.Request(nil), m.requests...)
}

// setupAPITest wires a server over fakes and returns its deps for inspection.
func setupAPITest(t *testing.T, mutate func(*config.Config, *Deps)) (*Server, *Deps) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.StaticDir = t.TempDir()
	cfg.Server.PublishInterval = 20 * time.Millisecond
	cfg.Video.URL = "http://camera.local/stream"
	cfg.Auth.Secret = "must-not-leak"

	hub := session.NewHub(nil)
	t.Cleanup(hub.Stop)

	deps := &Deps{
		Vehicle:   &staticVehicle{},
		Executor:  &MockExecutor{},
		Link:      fakeLinkState{state: supervisor.StateIdle},
		Hub:       hub,
		ListPorts: func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil },
	}
	if mutate != nil {
		mutate(cfg, deps)
	}
	deps.Config = config.NewStaticStore(cfg)
	return NewServer(*deps, nil), deps
}

func doGet(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
	if resp.CorrelationID == "" {
		t.Error("Expected correlationId in envelope")
	}
	return resp
}

func TestConfigExposesOnlySafeKeys(t *testing.T) {
	s, _ := setupAPITest(t, nil)
	rec := doGet(t, s, "/api/config")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if len(body) != 1 || body["video_url"] != "http://camera.local/stream" {
		t.Errorf("Unexpected config body %v", body)
	}
	if strings.Contains(rec.Body.String(), "must-not-leak") {
		t.Error("Secret leaked through /api/config")
	}
}

func TestTelemetryReturnsSnapshot(t *testing.T) {
	mode := "HOLD"
	s, _ := setupAPITest(t, func(_ *config.Config, d *Deps) {
		d.Vehicle = &staticVehicle{snap: telemetry.Snapshot{Connected: true, Mode: &mode}}
	})
	rec := doGet(t, s, "/api/telemetry")

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if body["connected"] != true || body["mode"] != "HOLD" {
		t.Errorf("Unexpected snapshot %v", body)
	}
	if _, ok := body["gps"].(map[string]any); !ok {
		t.Errorf("Expected nested gps object, got %v", body["gps"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := setupAPITest(t, nil)
	for _, path := range []string{"/api/config", "/api/telemetry", "/api/health", "/api/ports", "/api/history"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("Expected 405, got %d", rec.Code)
			}
			if resp := decodeEnvelope(t, rec); resp.Code != "METHOD_NOT_ALLOWED" {
				t.Errorf("Expected METHOD_NOT_ALLOWED, got %q", resp.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	age := 0.4
	tests := []struct {
		name       string
		state      supervisor.State
		connected  bool
		wantHTTP   int
		wantStatus string
	}{
		{"idle", supervisor.StateIdle, false, http.StatusOK, "idle"},
		{"live", supervisor.StateLive, true, http.StatusOK, "ok"},
		{"live without heartbeat", supervisor.StateLive, false, http.StatusServiceUnavailable, "degraded"},
		{"backing off", supervisor.StateBackingOff, false, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setupAPITest(t, func(_ *config.Config, d *Deps) {
				d.Link = fakeLinkState{state: tt.state, attempts: 3}
				d.Vehicle = &staticVehicle{snap: telemetry.Snapshot{Connected: tt.connected, LastHeartbeatAgeSeconds: &age}}
				d.Probe = fakeProbe{probe.Status{}}
			})
			rec := doGet(t, s, "/api/health")
			if rec.Code != tt.wantHTTP {
				t.Fatalf("Expected %d, got %d", tt.wantHTTP, rec.Code)
			}

			resp := decodeEnvelope(t, rec)
			health, _ := resp.Data.(map[string]any)
			if tt.wantHTTP != http.StatusOK {
				health, _ = resp.Details.(map[string]any)
			}
			if health["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, health["status"])
			}
			linkInfo, _ := health["link"].(map[string]any)
			if linkInfo["state"] != tt.state.String() || linkInfo["attempts"] != float64(3) {
				t.Errorf("Unexpected link info %v", linkInfo)
			}
			probeInfo, _ := health["probe"].(map[string]any)
			if probeInfo["ping"] != "never" {
				t.Errorf("Unexpected probe info %v", probeInfo)
			}
			if health["subscribers"] != float64(0) {
				t.Errorf("Expected 0 subscribers, got %v", health["subscribers"])
			}
		})
	}
}

func TestPorts(t *testing.T) {
	s, _ := setupAPITest(t, func(cfg *config.Config, _ *Deps) {
		cfg.Link.Target = "/dev/ttyACM0"
	})
	rec := doGet(t, s, "/api/ports")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec).Data.(map[string]any)
	ports, _ := data["ports"].([]any)
	if len(ports) != 1 || ports[0] != "/dev/ttyACM0" || data["target"] != "/dev/ttyACM0" {
		t.Errorf("Unexpected ports data %v", data)
	}
}

func TestPortsEnumerationFailure(t *testing.T) {
	s, _ := setupAPITest(t, func(_ *config.Config, d *Deps) {
		d.ListPorts = func() ([]string, error) {
			return nil, &link.Error{Kind: link.KindTransport, Op: "list_ports", Err: errors.New("no sysfs")}
		}
	})
	rec := doGet(t, s, "/api/ports")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Code != "UNAVAILABLE" || resp.Message != "Transport: no sysfs" {
		t.Errorf("Unexpected error %+v", resp)
	}
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{}
	s, _ := setupAPITest(t, func(_ *config.Config, d *Deps) { d.History = history })

	tests := []struct {
		target    string
		wantCode  int
		wantLimit int
	}{
		{"/api/history", http.StatusOK, defaultHistoryLimit},
		{"/api/history?kind=commands&limit=5", http.StatusOK, 5},
		{"/api/history?limit=999999", http.StatusOK, maxHistoryLimit},
		{"/api/history?limit=-1", http.StatusBadRequest, 0},
		{"/api/history?kind=bogus", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			history.limits = nil
			rec := doGet(t, s, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantLimit > 0 && (len(history.limits) != 1 || history.limits[0] != tt.wantLimit) {
				t.Errorf("Expected limit %d, got %v", tt.wantLimit, history.limits)
			}
		})
	}
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := setupAPITest(t, nil)
	rec := doGet(t, s, "/api/history")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	var dir string
	s, _ := setupAPITest(t, func(cfg *config.Config, _ *Deps) { dir = cfg.Server.StaticDir })
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>rover</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("connect()"), 0644); err != nil {
		t.Fatal(err)
	}

	if rec := doGet(t, s, "/"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rover") {
		t.Errorf("Unexpected index response %d %q", rec.Code, rec.Body.String())
	}
	if rec := doGet(t, s, "/static/app.js"); rec.Code != http.StatusOK || rec.Body.String() != "connect()" {
		t.Errorf("Unexpected static response %d %q", rec.Code, rec.Body.String())
	}
	if rec := doGet(t, s, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestStopBeforeServe(t *testing.T) {
	s, _ := setupAPITest(t, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}
