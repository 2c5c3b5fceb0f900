package link

// Message is one decoded inbound frame. The set of implementations is closed:
// Heartbeat, SystemStatus, GPSRaw, VFRHUD, StatusText, EKFStatus and BadData.
// Frames of any other kind are dropped by the link before they reach callers.
type Message interface {
	// Kind returns the MAVLink message name.
	Kind() string

	isMessage()
}

// Heartbeat carries the vehicle's arming state and flight-mode code.
type Heartbeat struct {
	SystemID    uint8
	ComponentID uint8
	VehicleType *int
	Autopilot   *int
	BaseMode    *uint8
	CustomMode  *uint32
}

// SystemStatus is SYS_STATUS in raw protocol units.
type SystemStatus struct {
	VoltageMillivolts *int // 0 means unknown
	CurrentCentiamps  *int // -1 means unknown
	BatteryRemaining  *int // -1 means unknown
	SensorsPresent    *int
	SensorsEnabled    *int
	SensorsHealth     *int
}

// GPSRaw is GPS_RAW_INT in raw protocol units.
type GPSRaw struct {
	LatE7             *int64
	LonE7             *int64
	AltMillimeters    *int64
	EPHCentimeters    *int
	SatellitesVisible *int
	FixType           *int
}

// VFRHUD is the speed/heading report.
type VFRHUD struct {
	Groundspeed *float64
	Heading     *float64
}

// StatusText is a human-readable message from the autopilot.
type StatusText struct {
	Severity *int
	Text     string
}

// EKFStatus is EKF_STATUS_REPORT.
type EKFStatus struct {
	Flags *int
}

// BadData marks a frame that could not be decoded.
type BadData struct {
	Reason string
}

func (*Heartbeat) Kind() string    { return "HEARTBEAT" }
func (*SystemStatus) Kind() string { return "SYS_STATUS" }
func (*GPSRaw) Kind() string       { return "GPS_RAW_INT" }
func (*VFRHUD) Kind() string       { return "VFR_HUD" }
func (*StatusText) Kind() string   { return "STATUSTEXT" }
func (*EKFStatus) Kind() string    { return "EKF_STATUS_REPORT" }
func (*BadData) Kind() string      { return "BAD_DATA" }

func (*Heartbeat) isMessage()    {}
func (*SystemStatus) isMessage() {}
func (*GPSRaw) isMessage()       {}
func (*VFRHUD) isMessage()       {}
func (*StatusText) isMessage()   {}
func (*EKFStatus) isMessage()    {}
func (*BadData) isMessage()      {}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T {
	return &v
}
