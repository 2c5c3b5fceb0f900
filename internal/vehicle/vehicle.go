//
//
package vehicle

import (
	"sync"
	"time"

	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/telemetry"
)

// ModeResolver translates a heartbeat into a mode name.
type ModeResolver func(hb *link.Heartbeat) (string, bool)

// Vehicle is the single shared container for the telemetry state and the
// live link reference. One mutex guards both; no I/O happens while it is
// held.
type Vehicle struct {
	mu    sync.Mutex
	state *telemetry.State
	link  link.IVehicleLink

	// linkSince is when the current link was attached
	linkSince time.Time

	now func() time.Time
}

// New creates a disconnected vehicle with empty telemetry.
func New() *Vehicle {
	return &Vehicle{
		state: telemetry.New(),
		now:   time.Now,
	}
}

// Snapshot returns a deep copy of the telemetry.
func (v *Vehicle) Snapshot() telemetry.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Snapshot(v.now())
}

// Link returns the live link, or nil when disconnected. The caller borrows
// the reference; it must not close it.
func (v *Vehicle) Link() link.IVehicleLink {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.link
}

// LinkSince returns when the live link was attached, zero when there is none.
func (v *Vehicle) LinkSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.link == nil {
		return time.Time{}
	}
	return v.linkSince
}

// AttachLink makes l the live link. The snapshot stays disconnected until a
// heartbeat arrives on it.
func (v *Vehicle) AttachLink(l link.IVehicleLink) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.link = l
	v.linkSince = v.now()
	v.state.MarkLinkDown()
}

// DetachLink clears l as the live link and marks the vehicle disconnected.
// A non-empty warning is appended to the warnings log. If l is no longer the
// live link only the warning is recorded.
func (v *Vehicle) DetachLink(l link.IVehicleLink, warning string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.link == l {
		v.link = nil
		v.state.MarkLinkDown()
	}
	if warning != "" {
		v.state.AppendWarning(warning)
	}
}

// Apply normalizes msg from l. Messages from a link that is no longer live
// are discarded. For heartbeats the mode is resolved with resolve and
// published under the same lock.
func (v *Vehicle) Apply(l link.IVehicleLink, msg link.Message, resolve ModeResolver) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if l == nil || v.link != l {
		return
	}
	telemetry.ApplyMessage(v.state, msg, v.now())

	if hb, ok := msg.(*link.Heartbeat); ok && resolve != nil {
		if mode, ok := resolve(hb); ok {
			v.state.SetMode(mode)
		}
	}
}

// SetMode publishes a commanded flight mode.
func (v *Vehicle) SetMode(mode string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.SetMode(mode)
}

// AppendWarning adds an entry to the warnings log.
func (v *Vehicle) AppendWarning(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.AppendWarning(msg)
}

// AppendError adds an entry to the errors log.
func (v *Vehicle) AppendError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.AppendError(msg)
}
