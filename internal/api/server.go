//
//
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/session"
)

// Deps are the collaborators the server routes requests to. Probe, History
// and ListPorts are optional.
type Deps struct {
	Config    ConfigSource
	Vehicle   session.SnapshotSource
	Executor  command.ExecutorPort
	Link      LinkStatePort
	Hub       SessionHub
	Auth      *auth.Middleware
	Probe     ProbePort
	History   HistoryPort
	ListPorts func() ([]string, error)
}

// Server represents the HTTP API server.
type Server struct {
	deps       Deps
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
	log        *slog.Logger
}

// NewServer creates a new API server. A nil Auth disables authentication.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewMiddleware(nil)
	}
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The frontend may be served from another origin during development
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
		log:       logger.With("component", "api"),
	}

	srv := deps.Config.Current().Server
	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: srv.ReadTimeout,
		// Upgraded connections are hijacked, so this bounds plain responses only
		WriteTimeout: srv.WriteTimeout,
		IdleTimeout:  srv.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("HTTP server listening", "addr", ln.Addr().String())

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
