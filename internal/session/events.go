package session

import (
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/telemetry"
)

// Event types on the wire.
const (
	TypeServer        = "server"
	TypeTelemetry     = "telemetry"
	TypeMavOut        = "mav_out"
	TypeCommandResult = "command_result"
	TypeCommand       = "command"
)

// Server event levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ServerEvent is an out-of-band notice from the bridge.
type ServerEvent struct {
	Type    string `json:"type" cbor:"type"`
	Level   string `json:"level" cbor:"level"`
	Message string `json:"message" cbor:"message"`
}

// TelemetryEvent wraps one snapshot.
type TelemetryEvent struct {
	Type string             `json:"type" cbor:"type"`
	Data telemetry.Snapshot `json:"data" cbor:"data"`
}

// MavOutEvent echoes a command about to be sent to the vehicle.
type MavOutEvent struct {
	Type   string         `json:"type" cbor:"type"`
	Name   string         `json:"name" cbor:"name"`
	Params map[string]any `json:"params" cbor:"params"`
	TsMs   int64          `json:"ts_ms" cbor:"ts_ms"`
}

// CommandResultEvent reports the outcome of one command.
type CommandResultEvent struct {
	Type    string `json:"type" cbor:"type"`
	OK      bool   `json:"ok" cbor:"ok"`
	Message string `json:"message" cbor:"message"`
}

// CommandMessage is the only inbound shape accepted from subscribers.
type CommandMessage struct {
	Type    string         `json:"type" cbor:"type"`
	Command string         `json:"command" cbor:"command"`
	Params  map[string]any `json:"params" cbor:"params"`
}

// NewServerEvent builds a server event.
func NewServerEvent(level, message string) ServerEvent {
	return ServerEvent{Type: TypeServer, Level: level, Message: message}
}

func newTelemetryEvent(snap telemetry.Snapshot) TelemetryEvent {
	return TelemetryEvent{Type: TypeTelemetry, Data: snap}
}

func newMavOutEvent(req command.Request, tsMs int64) MavOutEvent {
	return MavOutEvent{Type: TypeMavOut, Name: string(req.Command), Params: req.Params, TsMs: tsMs}
}

func newCommandResultEvent(res command.Result) CommandResultEvent {
	return CommandResultEvent{Type: TypeCommandResult, OK: res.OK, Message: res.Message}
}
