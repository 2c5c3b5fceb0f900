package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/radio-control/mavbridge/internal/link"
)

// Server streams a simulated rover over a MAVLink endpoint and applies the
// commands it receives.
type Server struct {
	rover *Rover
	node  *gomavlib.Node
	rate  time.Duration
	log   *slog.Logger
}

// NewServer opens the endpoint named by target, using the same syntax as the
// bridge: udpout:host:port, tcpin:host:port, a serial device and so on.
// Telemetry is sent every rate.
func NewServer(rover *Rover, target string, baudrate int, rate time.Duration, logger *slog.Logger) (*Server, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("telemetry rate must be positive, got %v", rate)
	}
	endpoint, err := link.EndpointFor(link.Config{Target: target, Baudrate: baudrate})
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:        []gomavlib.EndpointConf{endpoint},
		Dialect:          ardupilotmega.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      rover.opts.SystemID,
		OutComponentID:   rover.opts.ComponentID,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		rover: rover,
		node:  node,
		rate:  rate,
		log:   logger.With("component", "roversim", "target", target),
	}, nil
}

// Run serves until ctx is cancelled, then closes the endpoint.
func (s *Server) Run(ctx context.Context) error {
	defer s.node.Close()

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	last := time.Now()
	wasBlackout := false

	events := s.node.Events()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("simulator stopped")
			return nil

		case now := <-ticker.C:
			s.rover.Step(now.Sub(last))
			last = now
			s.write(s.rover.Telemetry())

			blackout := s.rover.InBlackout()
			if blackout != wasBlackout {
				s.log.Info("reboot blackout", "active", blackout)
				wasBlackout = blackout
			}

		case evt, ok := <-events:
			if !ok {
				return fmt.Errorf("endpoint closed")
			}
			s.handleEvent(evt)
		}
	}
}

func (s *Server) handleEvent(evt gomavlib.Event) {
	switch e := evt.(type) {
	case *gomavlib.EventChannelOpen:
		s.log.Info("ground station connected", "channel", e.Channel.String())
	case *gomavlib.EventChannelClose:
		s.log.Info("ground station disconnected", "channel", e.Channel.String())
	case *gomavlib.EventParseError:
		s.log.Debug("dropping malformed frame", "error", e.Error)
	case *gomavlib.EventFrame:
		msg := e.Message()
		if _, isHeartbeat := msg.(*ardupilotmega.MessageHeartbeat); !isHeartbeat {
			s.log.Debug("received", "message", fmt.Sprintf("%T", msg), "from", e.SystemID())
		}
		s.write(s.rover.Handle(e.SystemID(), msg))
	}
}

func (s *Server) write(msgs []message.Message) {
	for _, msg := range msgs {
		if err := s.node.WriteMessageAll(msg); err != nil {
			s.log.Warn("write failed", "error", err)
			return
		}
	}
}
