//
//
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrHubStopped is returned by Serve after Stop.
var ErrHubStopped = errors.New("session hub stopped")

// stopTimeout bounds how long Stop waits for sessions to wind down.
const stopTimeout = 5 * time.Second

type entry struct {
	session *Session
	cancel  context.CancelFunc
}

// Hub tracks live subscriber sessions.
//
// LOCK ORDERING: h.mu is the only hub lock. It is never held while a session
// runs or writes.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	stopped  bool

	// Synchronization for shutdown
	wg sync.WaitGroup

	log *slog.Logger
}

// NewHub creates an empty hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]*entry),
		log:      logger.With("component", "hub"),
	}
}

// Serve registers s, runs it until it ends and unregisters it.
func (h *Hub) Serve(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		s.close()
		return ErrHubStopped
	}
	h.sessions[s.ID()] = &entry{session: s, cancel: cancel}
	h.wg.Add(1)
	count := len(h.sessions)
	h.mu.Unlock()

	h.log.Debug("session registered", "session", s.ID(), "sessions", count)

	defer func() {
		h.unregister(s.ID())
		h.wg.Done()
	}()
	return s.Run(ctx)
}

// unregister removes a session from the hub.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, exists := h.sessions[id]; exists {
		e.cancel()
		delete(h.sessions, id)
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast queues a server event on every session without blocking. It
// returns how many sessions accepted it.
func (h *Hub) Broadcast(level, message string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, e := range h.sessions {
		if e.session.Notify(level, message) {
			delivered++
		}
	}
	return delivered
}

// Stop cancels every session and waits for them to finish. Later Serve calls
// fail with ErrHubStopped.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	for _, e := range h.sessions {
		e.cancel()
	}
	h.mu.Unlock()

	// Wait for all sessions to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		h.log.Warn("sessions still running after stop timeout", "sessions", h.Count())
	}
}
