package telemetry

// GPS holds the last known position fix. Each field updates independently.
type GPS struct {
	Lat            *float64 `json:"lat" cbor:"lat"`
	Lon            *float64 `json:"lon" cbor:"lon"`
	AltitudeMeters *float64 `json:"alt_m" cbor:"alt_m"`
	SatelliteCount *int     `json:"sats" cbor:"sats"`
	HDOP           *float64 `json:"hdop" cbor:"hdop"`
	FixType        *int     `json:"fix_type" cbor:"fix_type"`
}

// Battery holds the last known battery readings.
type Battery struct {
	VoltageVolts     *float64 `json:"voltage_v" cbor:"voltage_v"`
	CurrentAmps      *float64 `json:"current_a" cbor:"current_a"`
	RemainingPercent *float64 `json:"remaining_pct" cbor:"remaining_pct"`
}

// Snapshot is the point-in-time telemetry view served to subscribers.
// Values are always in physical units. A Snapshot returned by State never
// shares memory with the live state.
type Snapshot struct {
	Connected               bool     `json:"connected" cbor:"connected"`
	LastHeartbeatAgeSeconds *float64 `json:"last_heartbeat_age_s" cbor:"last_heartbeat_age_s"`

	Armed *bool   `json:"armed" cbor:"armed"`
	Mode  *string `json:"mode" cbor:"mode"`

	GroundSpeedMetersPerSecond *float64 `json:"groundspeed_m_s" cbor:"groundspeed_m_s"`
	HeadingDegrees             *float64 `json:"heading_deg" cbor:"heading_deg"`

	GPS     GPS     `json:"gps" cbor:"gps"`
	Battery Battery `json:"battery" cbor:"battery"`

	SensorsPresent *int `json:"sensors_present" cbor:"sensors_present"`
	SensorsEnabled *int `json:"sensors_enabled" cbor:"sensors_enabled"`
	SensorsHealth  *int `json:"sensors_health" cbor:"sensors_health"`

	Errors     []string `json:"errors" cbor:"errors"`
	Warnings   []string `json:"warnings" cbor:"warnings"`
	StatusText []string `json:"statustext" cbor:"statustext"`

	TimestampMs *int64 `json:"timestamp_ms" cbor:"timestamp_ms"`
}

// clonePtr returns a pointer to a copy of *p, or nil.
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T {
	return &v
}
