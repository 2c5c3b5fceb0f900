package link

import (
	"context"
	"time"
)

// Config describes how to reach the vehicle.
type Config struct {
	// Target is a serial device path or a scheme-prefixed network address
	// (udp:, udpin:, udpout:, tcp:, tcpin:).
	Target string

	// Baudrate applies to serial targets only.
	Baudrate int

	// HeartbeatTimeout bounds the best-effort wait for the first heartbeat.
	HeartbeatTimeout time.Duration

	// SystemID is the MAVLink system id used for outbound frames.
	SystemID uint8
}

// CommandLong is a raw MAV_CMD invocation.
type CommandLong struct {
	Command      int
	Params       [7]float32
	Confirmation int
}

// IVehicleLink defines the contract the supervisor, the command executor and
// the liveness probe rely on.
type IVehicleLink interface {
	// ReceiveNext blocks up to timeout for one decoded message.
	// Returns (nil, nil) on timeout or cancellation.
	ReceiveNext(ctx context.Context, timeout time.Duration) (Message, error)

	// ResolveMode translates the heartbeat custom mode into a mode name.
	ResolveMode(hb *Heartbeat) (string, bool)

	// Arm sends MAV_CMD_COMPONENT_ARM_DISARM with param1=1.
	Arm(ctx context.Context) error

	// Disarm sends MAV_CMD_COMPONENT_ARM_DISARM with param1=0.
	Disarm(ctx context.Context) error

	// SetMode requests a flight mode by name.
	SetMode(ctx context.Context, mode string) error

	// RebootAutopilot sends MAV_CMD_PREFLIGHT_REBOOT_SHUTDOWN with param1=1.
	RebootAutopilot(ctx context.Context) error

	// Ping sends a PING carrying the current time in microseconds.
	Ping(ctx context.Context) error

	// OverrideRCChannels sets steering (ch1) and throttle (ch3) PWM.
	// A nil value releases that channel.
	OverrideRCChannels(ctx context.Context, steering, throttle *int) error

	// SendCommandLong passes a COMMAND_LONG through unchanged.
	SendCommandLong(ctx context.Context, cmd CommandLong) error

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// Dialer opens links. The supervisor depends on this rather than on Dial
// directly so tests can script connection outcomes.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (IVehicleLink, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg Config) (IVehicleLink, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, cfg Config) (IVehicleLink, error) {
	return f(ctx, cfg)
}

// MAVLinkDialer dials real MAVLink endpoints.
var MAVLinkDialer Dialer = DialerFunc(func(ctx context.Context, cfg Config) (IVehicleLink, error) {
	l, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
})

// Compile-time assertion that *Link implements IVehicleLink
var _ IVehicleLink = (*Link)(nil)
