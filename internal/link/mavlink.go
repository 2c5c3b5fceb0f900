package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// MAV_CMD and flag values used by the command primitives.
const (
	cmdComponentArmDisarm      = 400
	cmdPreflightRebootShutdown = 246
	modeFlagCustomModeEnabled  = 1
	defaultTargetSystem        = 1
	defaultTargetComponent     = 1
	rcOverrideMin              = 1000
	rcOverrideMax              = 2000
	defaultBaudrate            = 115200
	defaultGCSSystemID         = 255
	defaultTCPProbeTimeout     = 3 * time.Second
)

// inbound is one event read from the node, already stripped of gomavlib
// channel bookkeeping.
type inbound struct {
	systemID    uint8
	componentID uint8
	msg         message.Message
	parseErr    error
	closeErr    error
}

// Link is a MAVLink connection backed by a gomavlib node.
type Link struct {
	target string

	frames <-chan inbound
	write  func(message.Message) error
	closer func()

	// pending holds the heartbeat consumed while dialing so the first
	// ReceiveNext still delivers it.
	pending Message

	mu              sync.Mutex
	targetSystem    uint8
	targetComponent uint8
	vehicleType     int
	autopilot       int

	pingSeq   atomic.Uint32
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	now func() time.Time
}

// Dial opens the transport named by cfg.Target and waits up to
// cfg.HeartbeatTimeout for the first vehicle heartbeat. A missing heartbeat is
// not an error; the link is returned open either way.
func Dial(ctx context.Context, cfg Config) (*Link, error) {
	endpoint, err := EndpointFor(cfg)
	if err != nil {
		return nil, err
	}

	// gomavlib reconnects client endpoints in the background, so check that
	// the device or peer is reachable before handing it over.
	if err := probeEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}

	systemID := cfg.SystemID
	if systemID == 0 {
		systemID = defaultGCSSystemID
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:           []gomavlib.EndpointConf{endpoint},
		Dialect:             ardupilotmega.Dialect,
		OutVersion:          gomavlib.V2,
		OutSystemID:         systemID,
		StreamRequestEnable: true,
	})
	if err != nil {
		return nil, newError(KindTransport, "dial", "open %s: %v", cfg.Target, err)
	}

	frames := make(chan inbound, 64)
	l := newLink(cfg.Target, frames, node.WriteMessageAll, node.Close)
	go pumpEvents(node.Events(), frames, l.done)

	l.awaitHeartbeat(ctx, cfg.HeartbeatTimeout)
	return l, nil
}

// newLink assembles a Link around an inbound frame stream and a writer.
func newLink(target string, frames <-chan inbound, write func(message.Message) error, closer func()) *Link {
	return &Link{
		target:          target,
		frames:          frames,
		write:           write,
		closer:          closer,
		targetSystem:    defaultTargetSystem,
		targetComponent: defaultTargetComponent,
		vehicleType:     -1,
		autopilot:       -1,
		done:            make(chan struct{}),
		now:             time.Now,
	}
}

// pumpEvents forwards node events until the node is closed. Once the link is
// done, remaining events are drained so the node never blocks on delivery.
func pumpEvents(events <-chan gomavlib.Event, out chan<- inbound, done <-chan struct{}) {
	defer close(out)
	for evt := range events {
		var in inbound
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			in = inbound{
				systemID:    e.SystemID(),
				componentID: e.ComponentID(),
				msg:         e.Message(),
			}
		case *gomavlib.EventParseError:
			in = inbound{parseErr: e.Error}
		case *gomavlib.EventChannelClose:
			in = inbound{closeErr: errors.New("channel closed")}
		default:
			continue
		}

		select {
		case out <- in:
		case <-done:
			for range events {
			}
			return
		}
	}
}

// EndpointFor maps a target string onto a gomavlib endpoint: udp:/udpin:
// listen, udpout: send, tcp: connect, tcpin: listen, anything else is a
// serial device.
func EndpointFor(cfg Config) (gomavlib.EndpointConf, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return nil, newError(KindTransport, "dial", "empty target")
	}

	scheme, address, found := strings.Cut(target, ":")
	if found {
		switch scheme {
		case "udp", "udpin":
			return gomavlib.EndpointUDPServer{Address: address}, nil
		case "udpout":
			return gomavlib.EndpointUDPClient{Address: address}, nil
		case "tcp":
			return gomavlib.EndpointTCPClient{Address: address}, nil
		case "tcpin":
			return gomavlib.EndpointTCPServer{Address: address}, nil
		}
	}

	baud := cfg.Baudrate
	if baud <= 0 {
		baud = defaultBaudrate
	}
	return gomavlib.EndpointSerial{Device: target, Baud: baud}, nil
}

// probeEndpoint fails fast on endpoints that gomavlib would otherwise retry
// silently.
func probeEndpoint(ctx context.Context, endpoint gomavlib.EndpointConf) error {
	switch ep := endpoint.(type) {
	case gomavlib.EndpointSerial:
		return probeSerial(ep.Device, ep.Baud)
	case gomavlib.EndpointTCPClient:
		dialer := net.Dialer{Timeout: defaultTCPProbeTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", ep.Address)
		if err != nil {
			return newError(KindTransport, "dial", "connect %s: %v", ep.Address, err)
		}
		return conn.Close()
	}
	return nil
}

// awaitHeartbeat reads frames until a vehicle heartbeat arrives or the wait
// expires. Other messages seen meanwhile are dropped.
func (l *Link) awaitHeartbeat(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case in, ok := <-l.frames:
			if !ok {
				return
			}
			if hb, isHB := l.decode(in).(*Heartbeat); isHB {
				l.pending = hb
				return
			}
		}
	}
}

// ReceiveNext blocks up to timeout for one decoded message. It returns
// (nil, nil) on timeout or cancellation and a KindTransport error once the
// underlying connection is gone.
func (l *Link) ReceiveNext(ctx context.Context, timeout time.Duration) (Message, error) {
	if l.closed.Load() {
		return nil, NotConnected("receive")
	}
	if msg := l.pending; msg != nil {
		l.pending = nil
		return msg, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case in, ok := <-l.frames:
			if !ok {
				return nil, newError(KindTransport, "receive", "connection to %s closed", l.target)
			}
			if in.closeErr != nil {
				return nil, &Error{Kind: KindTransport, Op: "receive", Err: in.closeErr}
			}
			if msg := l.decode(in); msg != nil {
				return msg, nil
			}
		}
	}
}

// decode translates one inbound frame. Unsupported message kinds and
// heartbeats from other ground stations yield nil.
func (l *Link) decode(in inbound) Message {
	if in.parseErr != nil {
		return &BadData{Reason: in.parseErr.Error()}
	}

	switch m := in.msg.(type) {
	case *ardupilotmega.MessageHeartbeat:
		vehicleType := int(m.Type)
		autopilot := int(m.Autopilot)
		if vehicleType == mavTypeGCS || autopilot == autopilotInvalid {
			return nil
		}
		l.learnVehicle(in.systemID, in.componentID, vehicleType, autopilot)
		return &Heartbeat{
			SystemID:    in.systemID,
			ComponentID: in.componentID,
			VehicleType: ptr(vehicleType),
			Autopilot:   ptr(autopilot),
			BaseMode:    ptr(uint8(m.BaseMode)),
			CustomMode:  ptr(m.CustomMode),
		}

	case *ardupilotmega.MessageSysStatus:
		return &SystemStatus{
			VoltageMillivolts: ptr(int(m.VoltageBattery)),
			CurrentCentiamps:  ptr(int(m.CurrentBattery)),
			BatteryRemaining:  ptr(int(m.BatteryRemaining)),
			SensorsPresent:    ptr(int(m.OnboardControlSensorsPresent)),
			SensorsEnabled:    ptr(int(m.OnboardControlSensorsEnabled)),
			SensorsHealth:     ptr(int(m.OnboardControlSensorsHealth)),
		}

	case *ardupilotmega.MessageGpsRawInt:
		return &GPSRaw{
			LatE7:             ptr(int64(m.Lat)),
			LonE7:             ptr(int64(m.Lon)),
			AltMillimeters:    ptr(int64(m.Alt)),
			EPHCentimeters:    ptr(int(m.Eph)),
			SatellitesVisible: ptr(int(m.SatellitesVisible)),
			FixType:           ptr(int(m.FixType)),
		}

	case *ardupilotmega.MessageVfrHud:
		return &VFRHUD{
			Groundspeed: ptr(float64(m.Groundspeed)),
			Heading:     ptr(float64(m.Heading)),
		}

	case *ardupilotmega.MessageStatustext:
		return &StatusText{
			Severity: ptr(int(m.Severity)),
			Text:     m.Text,
		}

	case *ardupilotmega.MessageEkfStatusReport:
		return &EKFStatus{Flags: ptr(int(m.Flags))}
	}
	return nil
}

// learnVehicle records the addressing and type of the vehicle so commands
// reach it and mode tables match it.
func (l *Link) learnVehicle(systemID, componentID uint8, vehicleType, autopilot int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if systemID != 0 {
		l.targetSystem = systemID
		l.targetComponent = componentID
	}
	l.vehicleType = vehicleType
	l.autopilot = autopilot
}

// targets returns the current command destination.
func (l *Link) targets() (uint8, uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.targetSystem, l.targetComponent
}

// ResolveMode translates the heartbeat's custom mode into a mode name.
func (l *Link) ResolveMode(hb *Heartbeat) (string, bool) {
	return resolveMode(hb)
}

// ModeMapping returns a copy of the mode table for the connected vehicle, or
// an empty map when the vehicle has not identified itself or has no table.
func (l *Link) ModeMapping() map[string]uint32 {
	l.mu.Lock()
	autopilot, vehicleType := l.autopilot, l.vehicleType
	l.mu.Unlock()

	out := ModeTable(autopilot, vehicleType)
	if out == nil {
		out = map[string]uint32{}
	}
	return out
}

// Arm sends MAV_CMD_COMPONENT_ARM_DISARM with param1=1.
func (l *Link) Arm(ctx context.Context) error {
	return l.SendCommandLong(ctx, CommandLong{Command: cmdComponentArmDisarm, Params: [7]float32{1}})
}

// Disarm sends MAV_CMD_COMPONENT_ARM_DISARM with param1=0.
func (l *Link) Disarm(ctx context.Context) error {
	return l.SendCommandLong(ctx, CommandLong{Command: cmdComponentArmDisarm})
}

// RebootAutopilot sends MAV_CMD_PREFLIGHT_REBOOT_SHUTDOWN with param1=1.
func (l *Link) RebootAutopilot(ctx context.Context) error {
	return l.SendCommandLong(ctx, CommandLong{Command: cmdPreflightRebootShutdown, Params: [7]float32{1}})
}

// SetMode requests a flight mode by name. Names are matched case-insensitively
// against the vehicle's mode table. Before the vehicle has identified itself
// the request is best effort: a numeric custom mode is sent as is and a name
// is looked up in the ArduPilot tables, rover first.
func (l *Link) SetMode(ctx context.Context, mode string) error {
	name := strings.ToUpper(strings.TrimSpace(mode))
	if name == "" {
		return newError(KindUnsupportedMode, "set_mode", "empty mode name")
	}

	var customMode uint32
	table := l.ModeMapping()
	if len(table) > 0 {
		number, ok := table[name]
		if !ok {
			return newError(KindUnsupportedMode, "set_mode",
				"mode %q not supported by autopilot, supported: %s",
				name, strings.Join(sortedModeNames(table), ", "))
		}
		customMode = number
	} else {
		number, ok := parseCustomMode(name)
		if !ok {
			number, ok = guessCustomMode(name)
		}
		if !ok {
			return newError(KindUnsupportedMode, "set_mode",
				"mode %q not known to any ArduPilot vehicle", name)
		}
		customMode = number
	}

	targetSystem, _ := l.targets()
	msg := &ardupilotmega.MessageSetMode{
		TargetSystem: targetSystem,
		CustomMode:   customMode,
	}
	setEnum(&msg.BaseMode, modeFlagCustomModeEnabled)
	return l.send(ctx, "set_mode", msg)
}

// Ping sends a PING carrying the current time in microseconds.
func (l *Link) Ping(ctx context.Context) error {
	msg := &ardupilotmega.MessagePing{
		TimeUsec: uint64(l.now().UnixMicro()),
		Seq:      l.pingSeq.Add(1) - 1,
	}
	return l.send(ctx, "ping", msg)
}

// OverrideRCChannels sets steering (ch1) and throttle (ch3). Values are
// clamped to [1000, 2000]; nil sends 0, which releases the channel.
// Channels 2 and 4 to 8 are always 0.
func (l *Link) OverrideRCChannels(ctx context.Context, steering, throttle *int) error {
	targetSystem, targetComponent := l.targets()
	msg := &ardupilotmega.MessageRcChannelsOverride{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Chan1Raw:        clampPWM(steering),
		Chan3Raw:        clampPWM(throttle),
	}
	return l.send(ctx, "rc_override", msg)
}

// SendCommandLong writes a COMMAND_LONG to the vehicle unchanged. The
// command id must fit the 16-bit wire field.
func (l *Link) SendCommandLong(ctx context.Context, cmd CommandLong) error {
	if cmd.Command < 0 || cmd.Command > 0xFFFF {
		return InvalidParameter("command id %d out of range 0-65535", cmd.Command)
	}
	targetSystem, targetComponent := l.targets()
	msg := &ardupilotmega.MessageCommandLong{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Confirmation:    uint8(cmd.Confirmation),
		Param1:          cmd.Params[0],
		Param2:          cmd.Params[1],
		Param3:          cmd.Params[2],
		Param4:          cmd.Params[3],
		Param5:          cmd.Params[4],
		Param6:          cmd.Params[5],
		Param7:          cmd.Params[6],
	}
	setEnum(&msg.Command, cmd.Command)
	return l.send(ctx, "command_long", msg)
}

// send writes msg unless the link is closed or ctx is already done.
func (l *Link) send(ctx context.Context, op string, msg message.Message) error {
	if l.closed.Load() {
		return NotConnected(op)
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindSend, Op: op, Err: err}
	}
	if err := l.write(msg); err != nil {
		return &Error{Kind: KindSend, Op: op, Err: fmt.Errorf("write %s: %w", op, err)}
	}
	return nil
}

// Close releases the transport. Later calls are no-ops.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		if l.closer != nil {
			l.closer()
		}
	})
	return nil
}

// Target returns the target string the link was dialed with.
func (l *Link) Target() string {
	return l.target
}

// clampPWM bounds an RC value to the valid PWM range; nil maps to 0.
func clampPWM(v *int) uint16 {
	if v == nil {
		return 0
	}
	return uint16(min(rcOverrideMax, max(rcOverrideMin, *v)))
}

// setEnum assigns an integer to a dialect enum field without naming the enum
// type.
func setEnum[T ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int | ~int32 | ~int64](dst *T, v int) {
	*dst = T(v)
}
