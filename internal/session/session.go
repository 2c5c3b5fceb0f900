package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/telemetry"
)

const (
	// DefaultPublishInterval is the telemetry cadence when none is configured.
	DefaultPublishInterval = 250 * time.Millisecond

	// DefaultQueueSize bounds the events waiting for the writer.
	DefaultQueueSize = 64

	// writeWait bounds one frame write when the connection supports
	// deadlines.
	writeWait = 10 * time.Second
)

// Conn is the duplex message channel a session runs over.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Compile-time assertion that gorilla connections satisfy Conn
var _ Conn = (*websocket.Conn)(nil)

// SnapshotSource provides deep-copied telemetry snapshots.
type SnapshotSource interface {
	Snapshot() telemetry.Snapshot
}

// Options configures one session.
type Options struct {
	// PublishInterval is the telemetry cadence.
	PublishInterval time.Duration

	// Encoding is "json" (default) or "cbor".
	Encoding string

	// Claims of the authenticated caller. Nil means anonymous with every
	// scope.
	Claims *auth.Claims

	// QueueSize bounds the outbound queue.
	QueueSize int
}

// Session is one subscriber connection.
type Session struct {
	id       string
	conn     Conn
	codec    Codec
	source   SnapshotSource
	executor command.ExecutorPort
	claims   *auth.Claims
	interval time.Duration

	out chan any

	closeOnce sync.Once
	log       *slog.Logger
	now       func() time.Time
}

// NewSession creates a session over conn. It fails only for an unknown
// encoding.
func NewSession(conn Conn, source SnapshotSource, executor command.ExecutorPort, opts Options, logger *slog.Logger) (*Session, error) {
	codec, err := CodecFor(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = DefaultPublishInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Claims == nil {
		opts.Claims = auth.Anonymous
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		codec:    codec,
		source:   source,
		executor: executor,
		claims:   opts.Claims,
		interval: opts.PublishInterval,
		out:      make(chan any, opts.QueueSize),
		log:      logger.With("component", "session", "session", id, "encoding", codec.Name()),
		now:      time.Now,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Run serves the session until the peer disconnects, a write fails or ctx
// is cancelled. The connection is closed on return. A normal peer close
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	s.log.Info("subscriber connected", "subject", s.claims.Subject)
	s.send(ctx, NewServerEvent(LevelInfo, "WS connected"))

	// ReadMessage does not observe ctx; closing the connection unblocks it
	go func() {
		<-ctx.Done()
		s.close()
	}()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func(name string, loop func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := loop(ctx); err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
			}
		}()
	}

	run("writer", s.writeLoop)
	run("publish", s.publishLoop)
	run("receive", s.receiveLoop)
	wg.Wait()

	if firstErr != nil {
		s.log.Info("subscriber disconnected", "error", firstErr)
	} else {
		s.log.Info("subscriber disconnected")
	}
	return firstErr
}

// Notify queues a server event without blocking. It reports whether the
// event was queued.
func (s *Session) Notify(level, message string) bool {
	return s.trySend(NewServerEvent(level, message))
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// send queues ev, waiting for room unless ctx ends first.
func (s *Session) send(ctx context.Context, ev any) {
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}

// trySend queues ev only if there is room.
func (s *Session) trySend(ev any) bool {
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// writeLoop is the only goroutine that writes to the connection.
func (s *Session) writeLoop(ctx context.Context) error {
	deadliner, _ := s.conn.(interface{ SetWriteDeadline(time.Time) error })

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.out:
			data, err := s.codec.Encode(ev)
			if err != nil {
				s.log.Error("failed to encode event", "error", err)
				continue
			}
			if deadliner != nil {
				_ = deadliner.SetWriteDeadline(s.now().Add(writeWait))
			}
			if err := s.conn.WriteMessage(s.codec.MessageType(), data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// publishLoop pushes a snapshot immediately and then once per interval.
func (s *Session) publishLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.send(ctx, newTelemetryEvent(s.source.Snapshot()))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// receiveLoop reads command messages until the connection ends.
func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			return err
		}
		s.handle(ctx, data)
	}
}

// handle processes one inbound frame. Malformed frames never reach the
// executor.
func (s *Session) handle(ctx context.Context, data []byte) {
	req, err := s.decodeCommand(data)
	if err != nil {
		s.log.Debug("rejected command message", "error", err)
		s.send(ctx, newCommandResultEvent(command.Failure("Bad command JSON: %v", err)))
		return
	}

	if !s.claims.HasScope(auth.ScopeControl) {
		s.send(ctx, newCommandResultEvent(command.Failure("Forbidden: %s requires the %s scope", req.Command, auth.ScopeControl)))
		return
	}

	if !s.trySend(newMavOutEvent(req, s.now().UnixMilli())) {
		s.log.Debug("outbound queue full, dropped mav_out", "command", req.Command)
	}

	execCtx := command.WithSubscriber(auth.WithClaims(ctx, s.claims), s.id)
	res := s.executor.Execute(execCtx, req)
	s.send(ctx, newCommandResultEvent(res))
}

// decodeCommand parses and validates the envelope of a command message.
func (s *Session) decodeCommand(data []byte) (command.Request, error) {
	var msg CommandMessage
	if err := s.codec.Decode(data, &msg); err != nil {
		return command.Request{}, err
	}
	if msg.Type != TypeCommand {
		return command.Request{}, fmt.Errorf("type must be %q, got %q", TypeCommand, msg.Type)
	}
	cmd, err := command.ParseCommand(msg.Command)
	if err != nil {
		return command.Request{}, err
	}
	if msg.Params == nil {
		msg.Params = map[string]any{}
	}
	return command.Request{Command: cmd, Params: msg.Params}, nil
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
