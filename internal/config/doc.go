// Package config implements the configuration store for mavbridge.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (config.json from earlier deployments is read too, including its flat
// serial_port, baudrate and video_url keys), then MAVBRIDGE_* environment
// overrides. The result is validated before use.
//
// Store publishes the active configuration atomically so the link supervisor
// can pick up a new target without a restart.
package config
