// Package api defines ports (interfaces) for API server dependencies.
package api

import (
	"context"

	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/probe"
	"github.com/radio-control/mavbridge/internal/recorder"
	"github.com/radio-control/mavbridge/internal/session"
	"github.com/radio-control/mavbridge/internal/supervisor"
	"github.com/radio-control/mavbridge/internal/vehicle"
)

// ConfigSource supplies the current configuration.
type ConfigSource interface {
	Current() *config.Config
}

// LinkStatePort exposes the supervisor's lifecycle for health reporting.
type LinkStatePort interface {
	State() supervisor.State
	Attempts() int64
}

// SessionHub owns subscriber sessions.
type SessionHub interface {
	Serve(ctx context.Context, s *session.Session) error
	Count() int
}

// ProbePort exposes the latest liveness probe results.
type ProbePort interface {
	Status() probe.Status
}

// HistoryPort reads recorded telemetry and commands.
type HistoryPort interface {
	RecentSnapshots(ctx context.Context, limit int) ([]recorder.SnapshotRow, error)
	RecentCommands(ctx context.Context, limit int) ([]recorder.CommandRow, error)
}

// Compile-time assertions for port conformance
var _ ConfigSource = (*config.Store)(nil)
var _ LinkStatePort = (*supervisor.Supervisor)(nil)
var _ SessionHub = (*session.Hub)(nil)
var _ ProbePort = (*probe.Prober)(nil)
var _ HistoryPort = (*recorder.Recorder)(nil)
var _ session.SnapshotSource = (*vehicle.Vehicle)(nil)
