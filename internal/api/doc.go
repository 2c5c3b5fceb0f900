// Package api implements the HTTP surface of the bridge.
//
// It serves the browser frontend, upgrades /ws to a subscriber session and
// exposes a few read-only JSON endpoints (config, telemetry, health, serial
// ports, recorded history). Handlers share the unified response envelope
// defined in response.go; the browser-facing /api/config and /api/telemetry
// endpoints return bare JSON.
package api
