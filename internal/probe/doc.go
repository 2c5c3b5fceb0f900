// Package probe runs periodic, informational liveness checks: a MAVLink PING
// through the live link and a bounded fetch of the configured video stream.
// Results are exposed for the health endpoint and never affect telemetry.
package probe
