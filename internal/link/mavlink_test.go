package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// recorder captures messages written by a Link.
type recorder struct {
	mu   sync.Mutex
	msgs []message.Message
	err  error
}

func (r *recorder) write(m message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) last(t *testing.T) message.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatal("Expected a message to be written")
	}
	return r.msgs[len(r.msgs)-1]
}

func newTestLink() (*Link, chan inbound, *recorder) {
	frames := make(chan inbound, 16)
	rec := &recorder{}
	return newLink("test", frames, rec.write, nil), frames, rec
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

func roverHeartbeat(customMode uint32, armed bool) inbound {
	hb := &ardupilotmega.MessageHeartbeat{CustomMode: customMode}
	setEnum(&hb.Type, mavTypeRover)
	setEnum(&hb.Autopilot, autopilotArduPilot)
	if armed {
		setEnum(&hb.BaseMode, 128|modeFlagCustomModeEnabled)
	} else {
		setEnum(&hb.BaseMode, modeFlagCustomModeEnabled)
	}
	return inbound{systemID: 7, componentID: 1, msg: hb}
}

func TestEndpointFor(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantType string
		wantErr  bool
	}{
		{name: "udp server", target: "udp:0.0.0.0:14550", wantType: "gomavlib.EndpointUDPServer"},
		{name: "udpin server", target: "udpin:0.0.0.0:14550", wantType: "gomavlib.EndpointUDPServer"},
		{name: "udpout client", target: "udpout:10.0.0.2:14550", wantType: "gomavlib.EndpointUDPClient"},
		{name: "tcp client", target: "tcp:127.0.0.1:5760", wantType: "gomavlib.EndpointTCPClient"},
		{name: "tcpin server", target: "tcpin:0.0.0.0:5760", wantType: "gomavlib.EndpointTCPServer"},
		{name: "serial device", target: "/dev/ttyACM0", wantType: "gomavlib.EndpointSerial"},
		{name: "windows com port", target: "COM3", wantType: "gomavlib.EndpointSerial"},
		{name: "empty target", target: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := EndpointFor(Config{Target: tt.target, Baudrate: 57600})
			if tt.wantErr {
				if !errors.Is(err, ErrTransport) {
					t.Fatalf("Expected transport error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := typeName(ep); got != tt.wantType {
				t.Errorf("Expected %s, got %s", tt.wantType, got)
			}
		})
	}
}

func TestReceiveNextDecodesHeartbeat(t *testing.T) {
	l, frames, _ := newTestLink()
	frames <- roverHeartbeat(4, true)

	msg, err := l.ReceiveNext(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	hb, ok := msg.(*Heartbeat)
	if !ok {
		t.Fatalf("Expected *Heartbeat, got %T", msg)
	}
	if *hb.BaseMode&128 == 0 {
		t.Error("Expected armed flag in base mode")
	}
	if *hb.CustomMode != 4 {
		t.Errorf("Expected custom mode 4, got %d", *hb.CustomMode)
	}

	// The vehicle's system id becomes the command target
	if sys, comp := l.targets(); sys != 7 || comp != 1 {
		t.Errorf("Expected target 7/1, got %d/%d", sys, comp)
	}
}

func TestReceiveNextTimeoutReturnsNil(t *testing.T) {
	l, _, _ := newTestLink()

	start := time.Now()
	msg, err := l.ReceiveNext(context.Background(), 20*time.Millisecond)
	if err != nil || msg != nil {
		t.Fatalf("Expected (nil, nil) on timeout, got (%v, %v)", msg, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("ReceiveNext returned before the timeout")
	}
}

func TestReceiveNextCancelledReturnsNil(t *testing.T) {
	l, _, _ := newTestLink()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := l.ReceiveNext(ctx, time.Hour)
	if err != nil || msg != nil {
		t.Fatalf("Expected (nil, nil) on cancellation, got (%v, %v)", msg, err)
	}
}

func TestReceiveNextTransportFailure(t *testing.T) {
	t.Run("stream closed", func(t *testing.T) {
		l, frames, _ := newTestLink()
		close(frames)

		_, err := l.ReceiveNext(context.Background(), time.Second)
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("Expected ErrTransport, got %v", err)
		}
	})

	t.Run("channel closed event", func(t *testing.T) {
		l, frames, _ := newTestLink()
		frames <- inbound{closeErr: errors.New("channel closed")}

		_, err := l.ReceiveNext(context.Background(), time.Second)
		if KindOf(err) != KindTransport {
			t.Fatalf("Expected KindTransport, got %v", err)
		}
	})

	t.Run("closed link", func(t *testing.T) {
		l, _, _ := newTestLink()
		_ = l.Close()

		_, err := l.ReceiveNext(context.Background(), time.Second)
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Expected ErrNotConnected, got %v", err)
		}
	})
}

func TestReceiveNextSkipsUnsupportedAndGCS(t *testing.T) {
	l, frames, _ := newTestLink()

	gcs := &ardupilotmega.MessageHeartbeat{}
	setEnum(&gcs.Type, mavTypeGCS)
	setEnum(&gcs.Autopilot, autopilotInvalid)
	frames <- inbound{systemID: 255, msg: gcs}
	frames <- inbound{systemID: 1, msg: &ardupilotmega.MessageAttitude{}}
	frames <- inbound{systemID: 1, msg: &ardupilotmega.MessageVfrHud{Groundspeed: 1.5, Heading: 270}}

	msg, err := l.ReceiveNext(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	hud, ok := msg.(*VFRHUD)
	if !ok {
		t.Fatalf("Expected *VFRHUD, got %T", msg)
	}
	if *hud.Groundspeed != 1.5 || *hud.Heading != 270 {
		t.Errorf("Unexpected VFR_HUD values: %v %v", *hud.Groundspeed, *hud.Heading)
	}
}

func TestReceiveNextParseErrorIsBadData(t *testing.T) {
	l, frames, _ := newTestLink()
	frames <- inbound{parseErr: errors.New("wrong checksum")}

	msg, err := l.ReceiveNext(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	bad, ok := msg.(*BadData)
	if !ok {
		t.Fatalf("Expected *BadData, got %T", msg)
	}
	if !strings.Contains(bad.Reason, "checksum") {
		t.Errorf("Expected reason to mention checksum, got %q", bad.Reason)
	}
}

func TestDecodeRawUnits(t *testing.T) {
	l, _, _ := newTestLink()

	sys := &ardupilotmega.MessageSysStatus{VoltageBattery: 12600, CurrentBattery: -1, BatteryRemaining: 87}
	status, ok := l.decode(inbound{msg: sys}).(*SystemStatus)
	if !ok {
		t.Fatal("Expected *SystemStatus")
	}
	if *status.VoltageMillivolts != 12600 || *status.CurrentCentiamps != -1 || *status.BatteryRemaining != 87 {
		t.Errorf("Unexpected SYS_STATUS decode: %+v", status)
	}

	gps := &ardupilotmega.MessageGpsRawInt{Lat: 377749000, Lon: -1224194000, Alt: 30000, Eph: 120, SatellitesVisible: 9}
	setEnum(&gps.FixType, 3)
	raw, ok := l.decode(inbound{msg: gps}).(*GPSRaw)
	if !ok {
		t.Fatal("Expected *GPSRaw")
	}
	if *raw.LatE7 != 377749000 || *raw.LonE7 != -1224194000 || *raw.FixType != 3 || *raw.SatellitesVisible != 9 {
		t.Errorf("Unexpected GPS_RAW_INT decode: %+v", raw)
	}

	txt := &ardupilotmega.MessageStatustext{Text: "PreArm: Battery low"}
	setEnum(&txt.Severity, 2)
	st, ok := l.decode(inbound{msg: txt}).(*StatusText)
	if !ok {
		t.Fatal("Expected *StatusText")
	}
	if *st.Severity != 2 || st.Text != "PreArm: Battery low" {
		t.Errorf("Unexpected STATUSTEXT decode: %+v", st)
	}

	ekf := &ardupilotmega.MessageEkfStatusReport{}
	report, ok := l.decode(inbound{msg: ekf}).(*EKFStatus)
	if !ok {
		t.Fatal("Expected *EKFStatus")
	}
	if report.Flags == nil || *report.Flags != 0 {
		t.Errorf("Expected zero EKF flags, got %v", report.Flags)
	}
}

func TestAwaitHeartbeatKeepsItPending(t *testing.T) {
	l, frames, _ := newTestLink()
	frames <- inbound{msg: &ardupilotmega.MessageVfrHud{}}
	frames <- roverHeartbeat(10, false)

	l.awaitHeartbeat(context.Background(), time.Second)

	msg, err := l.ReceiveNext(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := msg.(*Heartbeat); !ok {
		t.Fatalf("Expected pending heartbeat first, got %T", msg)
	}
}

func TestAwaitHeartbeatTimeoutIsNotFatal(t *testing.T) {
	l, _, _ := newTestLink()

	l.awaitHeartbeat(context.Background(), 10*time.Millisecond)

	if l.pending != nil {
		t.Error("Expected no pending heartbeat")
	}
	if err := l.Ping(context.Background()); err != nil {
		t.Errorf("Expected link to stay usable, got %v", err)
	}
}

func TestArmDisarmReboot(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Link) error
		command int
		param1  float32
	}{
		{name: "arm", call: func(l *Link) error { return l.Arm(context.Background()) }, command: 400, param1: 1},
		{name: "disarm", call: func(l *Link) error { return l.Disarm(context.Background()) }, command: 400, param1: 0},
		{name: "reboot", call: func(l *Link) error { return l.RebootAutopilot(context.Background()) }, command: 246, param1: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, rec := newTestLink()
			if err := tt.call(l); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			cmd, ok := rec.last(t).(*ardupilotmega.MessageCommandLong)
			if !ok {
				t.Fatalf("Expected COMMAND_LONG, got %T", rec.last(t))
			}
			if int(cmd.Command) != tt.command {
				t.Errorf("Expected command %d, got %d", tt.command, int(cmd.Command))
			}
			if cmd.Param1 != tt.param1 {
				t.Errorf("Expected param1 %v, got %v", tt.param1, cmd.Param1)
			}
			if cmd.TargetSystem != defaultTargetSystem || cmd.TargetComponent != defaultTargetComponent {
				t.Errorf("Expected default targets, got %d/%d", cmd.TargetSystem, cmd.TargetComponent)
			}
		})
	}
}

func TestOverrideRCChannels(t *testing.T) {
	l, _, rec := newTestLink()
	steering := 2500

	if err := l.OverrideRCChannels(context.Background(), &steering, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rc, ok := rec.last(t).(*ardupilotmega.MessageRcChannelsOverride)
	if !ok {
		t.Fatalf("Expected RC_CHANNELS_OVERRIDE, got %T", rec.last(t))
	}
	if rc.Chan1Raw != 2000 {
		t.Errorf("Expected ch1 clamped to 2000, got %d", rc.Chan1Raw)
	}
	if rc.Chan3Raw != 0 {
		t.Errorf("Expected ch3 released (0), got %d", rc.Chan3Raw)
	}
	others := []uint16{rc.Chan2Raw, rc.Chan4Raw, rc.Chan5Raw, rc.Chan6Raw, rc.Chan7Raw, rc.Chan8Raw}
	for i, v := range others {
		if v != 0 {
			t.Errorf("Expected untouched channel %d to be 0, got %d", i, v)
		}
	}
}

func TestOverrideRCChannelsReleaseBoth(t *testing.T) {
	l, _, rec := newTestLink()

	if err := l.OverrideRCChannels(context.Background(), nil, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rc := rec.last(t).(*ardupilotmega.MessageRcChannelsOverride)
	if rc.Chan1Raw != 0 || rc.Chan3Raw != 0 {
		t.Errorf("Expected ch1 and ch3 released, got %d/%d", rc.Chan1Raw, rc.Chan3Raw)
	}
}

func TestSendCommandLongRejectsWideID(t *testing.T) {
	l, _, rec := newTestLink()

	err := l.SendCommandLong(context.Background(), CommandLong{Command: 66336, Params: [7]float32{1}})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("Expected ErrInvalidParameter, got %v", err)
	}
	if len(rec.msgs) != 0 {
		t.Error("Expected nothing written")
	}
}

func TestClampPWM(t *testing.T) {
	tests := []struct {
		in   *int
		want uint16
	}{
		{in: nil, want: 0},
		{in: ptr(-5), want: 1000},
		{in: ptr(999), want: 1000},
		{in: ptr(1500), want: 1500},
		{in: ptr(2001), want: 2000},
	}
	for _, tt := range tests {
		if got := clampPWM(tt.in); got != tt.want {
			t.Errorf("clampPWM(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSetMode(t *testing.T) {
	t.Run("known rover mode", func(t *testing.T) {
		l, frames, rec := newTestLink()
		frames <- roverHeartbeat(0, false)
		if _, err := l.ReceiveNext(context.Background(), time.Second); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if err := l.SetMode(context.Background(), " hold "); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		sm, ok := rec.last(t).(*ardupilotmega.MessageSetMode)
		if !ok {
			t.Fatalf("Expected SET_MODE, got %T", rec.last(t))
		}
		if sm.CustomMode != 4 {
			t.Errorf("Expected custom mode 4 for HOLD, got %d", sm.CustomMode)
		}
		if int(sm.BaseMode) != modeFlagCustomModeEnabled {
			t.Errorf("Expected custom mode flag, got %d", int(sm.BaseMode))
		}
		if sm.TargetSystem != 7 {
			t.Errorf("Expected target system 7, got %d", sm.TargetSystem)
		}
	})

	t.Run("unknown mode lists supported names", func(t *testing.T) {
		l, frames, rec := newTestLink()
		frames <- roverHeartbeat(0, false)
		_, _ = l.ReceiveNext(context.Background(), time.Second)

		err := l.SetMode(context.Background(), "stabilize")
		if !errors.Is(err, ErrUnsupportedMode) {
			t.Fatalf("Expected ErrUnsupportedMode, got %v", err)
		}
		if !strings.Contains(err.Error(), "ACRO, AUTO") {
			t.Errorf("Expected sorted supported modes in %q", err.Error())
		}
		if len(rec.msgs) != 0 {
			t.Error("Expected nothing written for an unsupported mode")
		}
	})

	t.Run("no table sends numeric mode", func(t *testing.T) {
		l, _, rec := newTestLink()

		if err := l.SetMode(context.Background(), "15"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if sm := rec.last(t).(*ardupilotmega.MessageSetMode); sm.CustomMode != 15 {
			t.Errorf("Expected custom mode 15, got %d", sm.CustomMode)
		}
	})

	t.Run("no table sends best effort name", func(t *testing.T) {
		tests := []struct {
			mode string
			want uint32
		}{
			{mode: "GUIDED", want: 15},
			{mode: "hold", want: 4},
			{mode: "ALT_HOLD", want: 2},
			{mode: "FBWA", want: 5},
		}
		for _, tt := range tests {
			l, _, rec := newTestLink()
			if err := l.SetMode(context.Background(), tt.mode); err != nil {
				t.Fatalf("SetMode(%q) failed: %v", tt.mode, err)
			}
			if sm := rec.last(t).(*ardupilotmega.MessageSetMode); sm.CustomMode != tt.want {
				t.Errorf("SetMode(%q): expected custom mode %d, got %d", tt.mode, tt.want, sm.CustomMode)
			}
		}
	})

	t.Run("no table rejects names no vehicle knows", func(t *testing.T) {
		l, _, rec := newTestLink()

		if err := l.SetMode(context.Background(), "WARP"); !errors.Is(err, ErrUnsupportedMode) {
			t.Fatalf("Expected ErrUnsupportedMode, got %v", err)
		}
		if len(rec.msgs) != 0 {
			t.Error("Expected nothing written")
		}
	})

	t.Run("no table send failure", func(t *testing.T) {
		l, _, rec := newTestLink()
		rec.err = errors.New("port gone")

		if err := l.SetMode(context.Background(), "HOLD"); !errors.Is(err, ErrSend) {
			t.Fatalf("Expected ErrSend, got %v", err)
		}
	})
}

func TestPingIncrementsSequence(t *testing.T) {
	l, _, rec := newTestLink()
	fixed := time.UnixMicro(1_700_000_000_000_000)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 2; i++ {
		if err := l.Ping(context.Background()); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	p := rec.last(t).(*ardupilotmega.MessagePing)
	if p.TimeUsec != uint64(fixed.UnixMicro()) {
		t.Errorf("Expected timestamp %d, got %d", fixed.UnixMicro(), p.TimeUsec)
	}
	if p.Seq != 1 {
		t.Errorf("Expected second ping seq 1, got %d", p.Seq)
	}
}

func TestSendCommandLongPassthrough(t *testing.T) {
	l, _, rec := newTestLink()
	cmd := CommandLong{Command: 183, Params: [7]float32{9, 1500, 0, 0, 0, 0, 0}, Confirmation: 2}

	if err := l.SendCommandLong(context.Background(), cmd); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got := rec.last(t).(*ardupilotmega.MessageCommandLong)
	if int(got.Command) != 183 || got.Param1 != 9 || got.Param2 != 1500 || got.Confirmation != 2 {
		t.Errorf("Unexpected COMMAND_LONG: %+v", got)
	}
}

func TestSendFailures(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		l, _, rec := newTestLink()
		rec.err = errors.New("broken pipe")

		err := l.Arm(context.Background())
		if !errors.Is(err, ErrSend) {
			t.Fatalf("Expected ErrSend, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "Send: ") {
			t.Errorf("Expected kind prefix, got %q", err.Error())
		}
	})

	t.Run("closed link", func(t *testing.T) {
		l, _, _ := newTestLink()
		_ = l.Close()

		if err := l.Disarm(context.Background()); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Expected ErrNotConnected, got %v", err)
		}
	})
}

func TestCloseIdempotent(t *testing.T) {
	calls := 0
	l := newLink("test", make(chan inbound), (&recorder{}).write, func() { calls++ })

	for i := 0; i < 3; i++ {
		if err := l.Close(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected closer called once, got %d", calls)
	}
}
