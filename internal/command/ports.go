// Package command defines ports (interfaces) for executor collaborators.
package command

import (
	"context"
	"time"

	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/vehicle"
)

// ExecutorPort defines the minimal interface subscriber sessions need from
// the executor.
type ExecutorPort interface {
	Execute(ctx context.Context, req Request) Result
}

// VehicleState is the part of the shared vehicle state the executor touches.
type VehicleState interface {
	Link() link.IVehicleLink
	SetMode(mode string)
}

// ConfigSource supplies the current configuration.
type ConfigSource interface {
	Current() *config.Config
}

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, params map[string]any, result Result, latency time.Duration)
}

// AuditLoggers fans one record out to several sinks.
type AuditLoggers []AuditLogger

// LogAction forwards the record to every non-nil sink.
func (a AuditLoggers) LogAction(ctx context.Context, action string, params map[string]any, result Result, latency time.Duration) {
	for _, l := range a {
		if l != nil {
			l.LogAction(ctx, action, params, result, latency)
		}
	}
}

// Compile-time assertions
var (
	_ VehicleState = (*vehicle.Vehicle)(nil)
	_ ExecutorPort = (*Executor)(nil)
	_ AuditLogger  = AuditLoggers(nil)
)

type subscriberKey struct{}

// WithSubscriber tags ctx with the id of the subscriber issuing commands.
func WithSubscriber(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, subscriberKey{}, id)
}

// SubscriberFrom returns the subscriber id carried by ctx, or "".
func SubscriberFrom(ctx context.Context) string {
	id, _ := ctx.Value(subscriberKey{}).(string)
	return id
}
