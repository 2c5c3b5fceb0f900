package telemetry

import (
	"strconv"
	"strings"
	"time"

	"github.com/radio-control/mavbridge/internal/link"
)

// EKFNoFlagsWarning is logged when an EKF status report carries no flags.
const EKFNoFlagsWarning = "EKF: no flags set (check EKF health)"

// MAVLink conventions for the fields normalized below.
const (
	armedFlag = 128

	latLonScale   = 1e7
	latLonInvalid = 2147483647
	latLonMin     = -2147483648

	severityError   = 3
	severityWarning = 5
)

// ApplyMessage folds one decoded message into st. Malformed frames leave st
// untouched, as do nil messages of any kind. Every other kind stamps
// TimestampMs first, then applies its rule; absent fields are skipped.
func ApplyMessage(st *State, msg link.Message, now time.Time) {
	if _, bad := msg.(*link.BadData); bad || isNilMessage(msg) {
		return
	}
	st.snap.TimestampMs = ptr(now.UnixMilli())

	switch m := msg.(type) {
	case *link.Heartbeat:
		applyHeartbeat(st, m, now)
	case *link.SystemStatus:
		applySystemStatus(st, m)
	case *link.GPSRaw:
		applyGPS(st, m)
	case *link.VFRHUD:
		if m.Groundspeed != nil {
			st.snap.GroundSpeedMetersPerSecond = ptr(*m.Groundspeed)
		}
		if m.Heading != nil {
			st.snap.HeadingDegrees = ptr(*m.Heading)
		}
	case *link.StatusText:
		applyStatusText(st, m)
	case *link.EKFStatus:
		if m.Flags != nil && *m.Flags == 0 {
			st.warnings.Append(EKFNoFlagsWarning)
		}
	}
}

// isNilMessage reports a nil interface or a typed nil pointer.
func isNilMessage(msg link.Message) bool {
	switch m := msg.(type) {
	case nil:
		return true
	case *link.Heartbeat:
		return m == nil
	case *link.SystemStatus:
		return m == nil
	case *link.GPSRaw:
		return m == nil
	case *link.VFRHUD:
		return m == nil
	case *link.StatusText:
		return m == nil
	case *link.EKFStatus:
		return m == nil
	case *link.BadData:
		return m == nil
	}
	return false
}

func applyHeartbeat(st *State, m *link.Heartbeat, now time.Time) {
	st.snap.Connected = true
	st.lastHeartbeat = now

	var baseMode uint8
	if m.BaseMode != nil {
		baseMode = *m.BaseMode
	}
	st.snap.Armed = ptr(baseMode&armedFlag != 0)

	// Placeholder until the link resolves the name
	if m.CustomMode != nil && st.snap.Mode == nil {
		st.snap.Mode = ptr(strconv.FormatUint(uint64(*m.CustomMode), 10))
	}
}

func applySystemStatus(st *State, m *link.SystemStatus) {
	if v := m.VoltageMillivolts; v != nil && *v != 0 {
		st.snap.Battery.VoltageVolts = ptr(float64(*v) / 1000)
	}
	if c := m.CurrentCentiamps; c != nil && *c != -1 && *c != 0 {
		st.snap.Battery.CurrentAmps = ptr(float64(*c) / 100)
	}
	if r := m.BatteryRemaining; r != nil && *r >= 0 {
		st.snap.Battery.RemainingPercent = ptr(float64(*r))
	}

	if m.SensorsPresent != nil {
		st.snap.SensorsPresent = ptr(*m.SensorsPresent)
	}
	if m.SensorsEnabled != nil {
		st.snap.SensorsEnabled = ptr(*m.SensorsEnabled)
	}
	if m.SensorsHealth != nil {
		st.snap.SensorsHealth = ptr(*m.SensorsHealth)
	}
}

func applyGPS(st *State, m *link.GPSRaw) {
	if validLatLon(m.LatE7) {
		st.snap.GPS.Lat = ptr(float64(*m.LatE7) / latLonScale)
	}
	if validLatLon(m.LonE7) {
		st.snap.GPS.Lon = ptr(float64(*m.LonE7) / latLonScale)
	}
	if a := m.AltMillimeters; a != nil && *a != 0 {
		st.snap.GPS.AltitudeMeters = ptr(float64(*a) / 1000)
	}
	if e := m.EPHCentimeters; e != nil && *e > 0 {
		st.snap.GPS.HDOP = ptr(float64(*e) / 100)
	}
	if m.SatellitesVisible != nil {
		st.snap.GPS.SatelliteCount = ptr(*m.SatellitesVisible)
	}
	if m.FixType != nil {
		st.snap.GPS.FixType = ptr(*m.FixType)
	}
}

// validLatLon rejects absent values and the protocol's "unknown" sentinels.
func validLatLon(v *int64) bool {
	if v == nil {
		return false
	}
	switch *v {
	case 0, latLonInvalid, latLonMin:
		return false
	}
	return true
}

func applyStatusText(st *State, m *link.StatusText) {
	line := strings.TrimSpace(m.Text)
	if line == "" {
		return
	}
	st.statusText.Append(line)

	if m.Severity == nil {
		return
	}
	switch {
	case *m.Severity <= severityError:
		st.errors.Append(line)
	case *m.Severity <= severityWarning:
		st.warnings.Append(line)
	}
}
