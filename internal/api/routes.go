//
//
package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/session"
	"github.com/radio-control/mavbridge/internal/supervisor"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// RegisterRoutes registers every endpoint.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	requireTelemetry := s.deps.Auth.RequireScope(auth.ScopeTelemetry)

	// Browser frontend (no auth required)
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/static/", s.handleStatic)

	// Health and config (no auth required)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)

	// Telemetry viewer access
	mux.HandleFunc("/api/telemetry", requireTelemetry(s.handleTelemetry))
	mux.HandleFunc("/api/ports", requireTelemetry(s.handlePorts))
	mux.HandleFunc("/api/history", requireTelemetry(s.handleHistory))

	// Subscriber sessions; commands are authorized per message
	mux.HandleFunc("/ws", requireTelemetry(s.handleWebSocket))
}

// handleIndex serves index.html for GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeAPIError(w, ErrNotFoundPath)
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	http.ServeFile(w, r, filepath.Join(s.staticDir(), "index.html"))
}

// handleStatic serves GET /static/*
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir()))).ServeHTTP(w, r)
}

func (s *Server) staticDir() string {
	return s.deps.Config.Current().Server.StaticDir
}

// handleConfig handles GET /api/config. Only browser-safe keys are exposed.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.deps.Config.Current()
	WriteJSON(w, map[string]string{
		"video_url": cfg.Video.URL,
	})
}

// handleTelemetry handles GET /api/telemetry with one snapshot.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, s.deps.Vehicle.Snapshot())
}

// handlePorts handles GET /api/ports
func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.ListPorts == nil {
		writeAPIError(w, ErrUnavailable)
		return
	}

	ports, err := s.deps.ListPorts()
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	WriteSuccess(w, map[string]interface{}{
		"ports":  ports,
		"target": s.deps.Config.Current().Link.Target,
	})
}

// handleHistory handles GET /api/history?kind=snapshots|commands&limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.History == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Recorder is not enabled", nil)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	var rows interface{}
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "snapshots":
		rows, err = s.deps.History.RecentSnapshots(r.Context(), limit)
	case "commands":
		rows, err = s.deps.History.RecentCommands(r.Context(), limit)
	default:
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST",
			fmt.Sprintf("unknown kind %q, expected snapshots or commands", kind), nil)
		return
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}
	WriteSuccess(w, rows)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

// handleWebSocket upgrades GET /ws into a subscriber session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	encoding := r.URL.Query().Get("encoding")
	if _, err := session.CodecFor(encoding); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess, err := session.NewSession(conn, s.deps.Vehicle, s.deps.Executor, session.Options{
		PublishInterval: s.deps.Config.Current().Server.PublishInterval,
		Encoding:        encoding,
		Claims:          auth.ClaimsFromContext(r.Context()),
	}, s.log)
	if err != nil {
		_ = conn.Close()
		s.log.Error("failed to create session", "error", err)
		return
	}

	s.log.Info("subscriber connected", "session", sess.ID(), "remote", r.RemoteAddr)
	err = s.deps.Hub.Serve(r.Context(), sess)
	switch {
	case errors.Is(err, session.ErrHubStopped):
		s.log.Info("subscriber rejected during shutdown", "session", sess.ID())
	case err != nil:
		s.log.Info("subscriber disconnected", "session", sess.ID(), "error", err)
	default:
		s.log.Info("subscriber disconnected", "session", sess.ID())
	}
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	snap := s.deps.Vehicle.Snapshot()
	state := s.deps.Link.State()

	linkInfo := map[string]interface{}{
		"state":     state.String(),
		"connected": snap.Connected,
		"attempts":  s.deps.Link.Attempts(),
	}
	if snap.LastHeartbeatAgeSeconds != nil {
		linkInfo["lastHeartbeatAgeSec"] = *snap.LastHeartbeatAgeSeconds
	}

	health := map[string]interface{}{
		"status":      healthStatus(state, snap.Connected),
		"uptimeSec":   time.Since(s.startTime).Seconds(),
		"started":     humanize.Time(s.startTime),
		"link":        linkInfo,
		"subscribers": s.deps.Hub.Count(),
	}
	if s.deps.Probe != nil {
		health["probe"] = s.deps.Probe.Status().Describe()
	}

	if health["status"] == "degraded" {
		// Pass health data as details so it's available in the error response
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"Vehicle link is not live", health)
		return
	}
	WriteSuccess(w, health)
}

// healthStatus is "ok" with a live vehicle, "idle" with no target configured
// and "degraded" otherwise.
func healthStatus(state supervisor.State, connected bool) string {
	switch {
	case state == supervisor.StateIdle:
		return "idle"
	case state == supervisor.StateLive && connected:
		return "ok"
	default:
		return "degraded"
	}
}
