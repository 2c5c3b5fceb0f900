package sim

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/radio-control/mavbridge/internal/link"
)

// MAVLink values the simulated rover reports and understands.
const (
	mavTypeGroundRover  = 10
	autopilotArduPilot  = 3
	mavStateStandby     = 3
	mavStateActive      = 4
	modeFlagCustom      = 1
	modeFlagArmed       = 128
	cmdArmDisarm        = 400
	cmdRebootShutdown   = 246
	resultAccepted      = 0
	resultDenied        = 2
	resultUnsupported   = 3
	severityInfo        = 6
	severityWarning     = 4
	gpsFix3D            = 3
	ekfHealthyFlags     = 0x1FF
	sensorsMask         = 0x20FC0F
	rcNeutral           = 1500
	rcSpan              = 500
	metersPerDegreeLat  = 111320.0
	defaultCruiseSpeed  = 2.0
	defaultTurnRate     = 45.0
	defaultBatteryDrain = 0.01
)

// Options configures a simulated rover.
type Options struct {
	SystemID    uint8
	ComponentID uint8
	// Home position in degrees and meters
	Lat, Lon, Alt float64
	// RebootBlackout is how long the rover stays silent after a reboot
	RebootBlackout time.Duration
}

// DefaultOptions returns a rover parked at a fixed home position.
func DefaultOptions() Options {
	return Options{
		SystemID:       1,
		ComponentID:    1,
		Lat:            47.397742,
		Lon:            8.545594,
		Alt:            488,
		RebootBlackout: 3 * time.Second,
	}
}

// Rover is the thread-safe state of a simulated ArduRover vehicle.
type Rover struct {
	mu sync.Mutex

	opts  Options
	modes map[string]uint32

	armed      bool
	customMode uint32
	lat, lon   float64
	heading    float64
	speed      float64
	voltage    float64
	remaining  float64
	steering   int
	throttle   int

	blackoutUntil time.Time
	statusTexts   []string

	now func() time.Time
}

// NewRover creates a disarmed rover in HOLD at the home position.
func NewRover(opts Options) *Rover {
	modes := link.ModeTable(autopilotArduPilot, mavTypeGroundRover)
	return &Rover{
		opts:       opts,
		modes:      modes,
		customMode: modes["HOLD"],
		lat:        opts.Lat,
		lon:        opts.Lon,
		voltage:    12.6,
		remaining:  100,
		now:        time.Now,
	}
}

// Armed reports whether the rover is armed.
func (r *Rover) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// Mode returns the current mode name, or the number when it has no name.
func (r *Rover) Mode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modeNameLocked()
}

func (r *Rover) modeNameLocked() string {
	for name, number := range r.modes {
		if number == r.customMode {
			return name
		}
	}
	return fmt.Sprintf("%d", r.customMode)
}

// RC returns the last steering and throttle override, 0 when released.
func (r *Rover) RC() (steering, throttle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steering, r.throttle
}

// InBlackout reports whether the rover is rebooting.
func (r *Rover) InBlackout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Before(r.blackoutUntil)
}

// Handle applies one message from the ground station with system ID from and
// returns the replies to send back. Messages addressed to another system are
// ignored, as is everything during a reboot blackout.
func (r *Rover) Handle(from uint8, msg message.Message) []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.now().Before(r.blackoutUntil) {
		return nil
	}

	switch m := msg.(type) {
	case *ardupilotmega.MessageSetMode:
		if !r.addressedLocked(m.TargetSystem) {
			return nil
		}
		r.setModeLocked(m.CustomMode)
		return nil

	case *ardupilotmega.MessageCommandLong:
		if !r.addressedLocked(m.TargetSystem) {
			return nil
		}
		return []message.Message{r.commandLocked(int(m.Command), m.Param1)}

	case *ardupilotmega.MessageRcChannelsOverride:
		if !r.addressedLocked(m.TargetSystem) {
			return nil
		}
		r.steering = int(m.Chan1Raw)
		r.throttle = int(m.Chan3Raw)
		return nil

	case *ardupilotmega.MessagePing:
		// Only requests carry a zero target
		if m.TargetSystem != 0 {
			return nil
		}
		return []message.Message{&ardupilotmega.MessagePing{
			TimeUsec:     m.TimeUsec,
			Seq:          m.Seq,
			TargetSystem: from,
		}}
	}
	return nil
}

func (r *Rover) addressedLocked(target uint8) bool {
	return target == 0 || target == r.opts.SystemID
}

func (r *Rover) setModeLocked(customMode uint32) {
	if customMode == r.customMode {
		return
	}
	r.customMode = customMode
	r.statusTexts = append(r.statusTexts, "Mode "+r.modeNameLocked())
}

func (r *Rover) commandLocked(cmd int, param1 float32) message.Message {
	ack := &ardupilotmega.MessageCommandAck{}
	setEnum(&ack.Command, cmd)

	switch cmd {
	case cmdArmDisarm:
		armed := param1 == 1
		if armed == r.armed {
			setEnum(&ack.Result, resultAccepted)
			break
		}
		if armed && r.remaining <= 0 {
			r.statusTexts = append(r.statusTexts, "PreArm: Battery depleted")
			setEnum(&ack.Result, resultDenied)
			break
		}
		r.armed = armed
		if armed {
			r.statusTexts = append(r.statusTexts, "Arming motors")
		} else {
			r.statusTexts = append(r.statusTexts, "Disarming motors")
		}
		setEnum(&ack.Result, resultAccepted)

	case cmdRebootShutdown:
		if r.armed {
			setEnum(&ack.Result, resultDenied)
			break
		}
		r.blackoutUntil = r.now().Add(r.opts.RebootBlackout)
		r.steering, r.throttle = 0, 0
		r.customMode = r.modes["HOLD"]
		setEnum(&ack.Result, resultAccepted)

	default:
		setEnum(&ack.Result, resultUnsupported)
	}
	return ack
}

// Step advances the rover by dt. An armed rover in a driving mode follows the
// RC override; MANUAL without override stops, AUTO and GUIDED cruise ahead.
func (r *Rover) Step(dt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seconds := dt.Seconds()
	if seconds <= 0 || r.now().Before(r.blackoutUntil) {
		return
	}

	// Negative speed is reversing along the current heading
	var speed float64
	speed, r.heading = r.targetMotionLocked(seconds)
	r.speed = math.Abs(speed)
	if speed != 0 {
		distance := speed * seconds
		rad := r.heading * math.Pi / 180
		r.lat += distance * math.Cos(rad) / metersPerDegreeLat
		r.lon += distance * math.Sin(rad) / (metersPerDegreeLat * math.Cos(r.lat*math.Pi/180))
	}

	if r.armed {
		r.remaining = math.Max(0, r.remaining-defaultBatteryDrain*seconds*(1+r.speed))
		r.voltage = 10.5 + 2.1*r.remaining/100
	}
}

func (r *Rover) targetMotionLocked(seconds float64) (speed, heading float64) {
	heading = r.heading
	if !r.armed {
		return 0, heading
	}

	switch strings.ToUpper(r.modeNameLocked()) {
	case "MANUAL", "ACRO", "STEERING":
		if r.throttle == 0 {
			return 0, heading
		}
		speed = defaultCruiseSpeed * float64(r.throttle-rcNeutral) / rcSpan
		if r.steering != 0 {
			heading += defaultTurnRate * seconds * float64(r.steering-rcNeutral) / rcSpan
		}
	case "AUTO", "GUIDED":
		speed = defaultCruiseSpeed
	default:
		return 0, heading
	}

	return speed, math.Mod(heading+360, 360)
}

// Telemetry returns the periodic stream: heartbeat, system status, GPS, HUD,
// EKF status and any status texts queued since the last call. A rebooting
// rover sends nothing.
func (r *Rover) Telemetry() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.now().Before(r.blackoutUntil) {
		return nil
	}

	hb := &ardupilotmega.MessageHeartbeat{
		CustomMode:     r.customMode,
		MavlinkVersion: 3,
	}
	setEnum(&hb.Type, mavTypeGroundRover)
	setEnum(&hb.Autopilot, autopilotArduPilot)
	baseMode := modeFlagCustom
	state := mavStateStandby
	if r.armed {
		baseMode |= modeFlagArmed
		state = mavStateActive
	}
	setEnum(&hb.BaseMode, baseMode)
	setEnum(&hb.SystemStatus, state)

	sys := &ardupilotmega.MessageSysStatus{
		VoltageBattery:   uint16(math.Round(r.voltage * 1000)),
		CurrentBattery:   int16(50 + r.speed*100),
		BatteryRemaining: int8(math.Round(r.remaining)),
	}
	setEnum(&sys.OnboardControlSensorsPresent, sensorsMask)
	setEnum(&sys.OnboardControlSensorsEnabled, sensorsMask)
	setEnum(&sys.OnboardControlSensorsHealth, sensorsMask)

	gps := &ardupilotmega.MessageGpsRawInt{
		TimeUsec:          uint64(r.now().UnixMicro()),
		Lat:               int32(math.Round(r.lat * 1e7)),
		Lon:               int32(math.Round(r.lon * 1e7)),
		Alt:               int32(math.Round(r.opts.Alt * 1000)),
		Eph:               80,
		Epv:               120,
		Vel:               uint16(r.speed * 100),
		Cog:               uint16(r.heading * 100),
		SatellitesVisible: 12,
	}
	setEnum(&gps.FixType, gpsFix3D)

	hud := &ardupilotmega.MessageVfrHud{
		Groundspeed: float32(r.speed),
		Heading:     int16(math.Round(r.heading)),
		Alt:         float32(r.opts.Alt),
	}
	if r.armed && r.speed > 0 {
		hud.Throttle = uint16(math.Min(100, r.speed/defaultCruiseSpeed*100))
	}

	ekf := &ardupilotmega.MessageEkfStatusReport{
		VelocityVariance: 0.1,
		PosHorizVariance: 0.1,
		PosVertVariance:  0.1,
		CompassVariance:  0.05,
	}
	setEnum(&ekf.Flags, ekfHealthyFlags)

	out := []message.Message{hb, sys, gps, hud, ekf}
	for _, text := range r.statusTexts {
		st := &ardupilotmega.MessageStatustext{Text: text}
		severity := severityInfo
		if strings.HasPrefix(text, "PreArm") {
			severity = severityWarning
		}
		setEnum(&st.Severity, severity)
		out = append(out, st)
	}
	r.statusTexts = nil
	return out
}

// setEnum assigns an integer to a dialect enum field without naming the enum
// type.
func setEnum[T ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int | ~int32 | ~int64](dst *T, v int) {
	*dst = T(v)
}
