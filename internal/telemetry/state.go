package telemetry

import "time"

// LogCapacity is the maximum number of entries kept by each bounded log.
const LogCapacity = 30

// BoundedLog is an append-only list of strings holding at most LogCapacity
// entries. Appending past capacity drops the oldest entries first.
type BoundedLog struct {
	items []string
}

// Append adds s and trims the log back to capacity.
func (b *BoundedLog) Append(s string) {
	b.items = append(b.items, s)
	if over := len(b.items) - LogCapacity; over > 0 {
		b.items = append(b.items[:0:0], b.items[over:]...)
	}
}

// Len returns the number of entries.
func (b *BoundedLog) Len() int {
	return len(b.items)
}

// Items returns a copy of the entries, oldest first. Never nil.
func (b *BoundedLog) Items() []string {
	out := make([]string, len(b.items))
	copy(out, b.items)
	return out
}

// State is the canonical mutable telemetry. It is not safe for concurrent use;
// callers guard it with their own lock.
type State struct {
	snap          Snapshot
	lastHeartbeat time.Time

	errors     BoundedLog
	warnings   BoundedLog
	statusText BoundedLog
}

// New returns an empty, disconnected state.
func New() *State {
	return &State{}
}

// Snapshot returns a deep copy with the heartbeat age derived from now.
func (s *State) Snapshot(now time.Time) Snapshot {
	out := Snapshot{
		Connected:                  s.snap.Connected,
		Armed:                      clonePtr(s.snap.Armed),
		Mode:                       clonePtr(s.snap.Mode),
		GroundSpeedMetersPerSecond: clonePtr(s.snap.GroundSpeedMetersPerSecond),
		HeadingDegrees:             clonePtr(s.snap.HeadingDegrees),
		GPS: GPS{
			Lat:            clonePtr(s.snap.GPS.Lat),
			Lon:            clonePtr(s.snap.GPS.Lon),
			AltitudeMeters: clonePtr(s.snap.GPS.AltitudeMeters),
			SatelliteCount: clonePtr(s.snap.GPS.SatelliteCount),
			HDOP:           clonePtr(s.snap.GPS.HDOP),
			FixType:        clonePtr(s.snap.GPS.FixType),
		},
		Battery: Battery{
			VoltageVolts:     clonePtr(s.snap.Battery.VoltageVolts),
			CurrentAmps:      clonePtr(s.snap.Battery.CurrentAmps),
			RemainingPercent: clonePtr(s.snap.Battery.RemainingPercent),
		},
		SensorsPresent: clonePtr(s.snap.SensorsPresent),
		SensorsEnabled: clonePtr(s.snap.SensorsEnabled),
		SensorsHealth:  clonePtr(s.snap.SensorsHealth),
		Errors:         s.errors.Items(),
		Warnings:       s.warnings.Items(),
		StatusText:     s.statusText.Items(),
		TimestampMs:    clonePtr(s.snap.TimestampMs),
	}

	if !s.lastHeartbeat.IsZero() {
		age := max(0, now.Sub(s.lastHeartbeat).Seconds())
		out.LastHeartbeatAgeSeconds = &age
	}
	return out
}

// Connected reports whether a heartbeat has been seen on the current link.
func (s *State) Connected() bool {
	return s.snap.Connected
}

// MarkLinkDown records the loss of the link: connected=false, armed unknown.
// The mode is left as it was.
func (s *State) MarkLinkDown() {
	s.snap.Connected = false
	s.snap.Armed = nil
}

// SetMode publishes a resolved or commanded flight mode.
func (s *State) SetMode(mode string) {
	s.snap.Mode = &mode
}

// AppendWarning adds an entry to the warnings log.
func (s *State) AppendWarning(msg string) {
	s.warnings.Append(msg)
}

// AppendError adds an entry to the errors log.
func (s *State) AppendError(msg string) {
	s.errors.Append(msg)
}
