// Package fake provides a scripted in-memory vehicle link for testing.
package fake

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radio-control/mavbridge/internal/link"
)

// Call records one outbound primitive invoked on the fake.
type Call struct {
	Op       string
	Mode     string
	Steering *int
	Throttle *int
	Command  link.CommandLong
}

// step is one scripted ReceiveNext outcome.
type step struct {
	msg link.Message
	err error
}

// FakeLink implements link.IVehicleLink for testing purposes.
type FakeLink struct {
	mu sync.Mutex

	// Scripted inbound traffic
	steps chan step

	// Recorded outbound primitives
	calls []Call

	// Error simulation
	sendErr error

	// When non-nil, primitives wait for it to close (or ctx) before returning
	block chan struct{}

	// Mode table; empty means the vehicle does not expose one
	modes map[string]uint32

	closed     bool
	closeCount int
}

// Compile-time assertion that FakeLink implements IVehicleLink
var _ link.IVehicleLink = (*FakeLink)(nil)

// NewFakeLink creates a fake link with an ArduRover style mode table.
func NewFakeLink() *FakeLink {
	return &FakeLink{
		steps: make(chan step, 256),
		modes: map[string]uint32{"MANUAL": 0, "HOLD": 4, "AUTO": 10, "RTL": 11, "GUIDED": 15},
	}
}

// Push queues a message for ReceiveNext.
func (f *FakeLink) Push(msg link.Message) {
	f.steps <- step{msg: msg}
}

// Fail queues a receive failure for ReceiveNext.
func (f *FakeLink) Fail(err error) {
	f.steps <- step{err: err}
}

// ReceiveNext returns the next scripted step, or (nil, nil) after timeout.
func (f *FakeLink) ReceiveNext(ctx context.Context, timeout time.Duration) (link.Message, error) {
	if f.isClosed() {
		return nil, link.NotConnected("receive")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
		return nil, nil
	case s := <-f.steps:
		return s.msg, s.err
	}
}

// ResolveMode looks the custom mode up in the fake's mode table.
func (f *FakeLink) ResolveMode(hb *link.Heartbeat) (string, bool) {
	if hb == nil || hb.CustomMode == nil {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, number := range f.modes {
		if number == *hb.CustomMode {
			return name, true
		}
	}
	return "", false
}

// Arm records an arm request.
func (f *FakeLink) Arm(ctx context.Context) error {
	return f.record(ctx, Call{Op: "arm"})
}

// Disarm records a disarm request.
func (f *FakeLink) Disarm(ctx context.Context) error {
	return f.record(ctx, Call{Op: "disarm"})
}

// SetMode validates the name against the mode table the way the real link
// does, then records the request.
func (f *FakeLink) SetMode(ctx context.Context, mode string) error {
	name := strings.ToUpper(strings.TrimSpace(mode))

	f.mu.Lock()
	_, known := f.modes[name]
	names := make([]string, 0, len(f.modes))
	for n := range f.modes {
		names = append(names, n)
	}
	f.mu.Unlock()

	if len(names) > 0 && !known {
		sort.Strings(names)
		return &link.Error{
			Kind: link.KindUnsupportedMode,
			Op:   "set_mode",
			Err:  unsupportedModeError{mode: name, supported: names},
		}
	}
	return f.record(ctx, Call{Op: "set_mode", Mode: name})
}

// RebootAutopilot records a reboot request.
func (f *FakeLink) RebootAutopilot(ctx context.Context) error {
	return f.record(ctx, Call{Op: "reboot_autopilot"})
}

// Ping records a ping.
func (f *FakeLink) Ping(ctx context.Context) error {
	return f.record(ctx, Call{Op: "ping"})
}

// OverrideRCChannels records an RC override.
func (f *FakeLink) OverrideRCChannels(ctx context.Context, steering, throttle *int) error {
	return f.record(ctx, Call{Op: "rc_override", Steering: steering, Throttle: throttle})
}

// SendCommandLong records a raw COMMAND_LONG.
func (f *FakeLink) SendCommandLong(ctx context.Context, cmd link.CommandLong) error {
	return f.record(ctx, Call{Op: "command_long", Command: cmd})
}

// Close marks the fake closed. Safe to call more than once.
func (f *FakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

// record applies the configured blocking and error simulation, then stores
// the call.
func (f *FakeLink) record(ctx context.Context, call Call) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &link.Error{Kind: link.KindSend, Op: call.Op, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return link.NotConnected(call.Op)
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *FakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Helper methods for testing

// SetSendError makes every primitive fail with err. nil restores success.
func (f *FakeLink) SetSendError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// SetBlock makes primitives wait until ch is closed or their context ends.
func (f *FakeLink) SetBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = ch
}

// SetModes replaces the mode table. An empty table disables validation.
func (f *FakeLink) SetModes(modes map[string]uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = modes
}

// Calls returns a copy of the recorded primitives.
func (f *FakeLink) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CloseCount reports how many times Close was called.
func (f *FakeLink) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// Closed reports whether Close was called.
func (f *FakeLink) Closed() bool {
	return f.isClosed()
}

type unsupportedModeError struct {
	mode      string
	supported []string
}

func (e unsupportedModeError) Error() string {
	return "mode \"" + e.mode + "\" not supported by autopilot, supported: " + strings.Join(e.supported, ", ")
}
