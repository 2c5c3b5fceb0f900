package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/radio-control/mavbridge/internal/link"
)

// defaultTimeout bounds a command when no configuration is available.
const defaultTimeout = 5 * time.Second

// action is one prepared link primitive.
type action func(ctx context.Context, l link.IVehicleLink) error

// Executor routes validated subscriber commands to the live link.
type Executor struct {
	// Shared vehicle state holding the live link
	vehicle VehicleState

	// Configuration for the command deadline
	config ConfigSource

	// Audit sink, optional
	auditLogger AuditLogger

	log *slog.Logger
}

// NewExecutor creates a new command executor. A nil logger uses
// slog.Default().
func NewExecutor(v VehicleState, cfg ConfigSource, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		vehicle: v,
		config:  cfg,
		log:     logger.With("component", "executor"),
	}
}

// SetAuditLogger sets the audit logger.
func (e *Executor) SetAuditLogger(logger AuditLogger) {
	e.auditLogger = logger
}

// Execute runs one command and reports the outcome. It never panics or
// returns an error; every failure becomes Result{OK: false}. The call returns
// within the configured command timeout even if the link primitive hangs.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	start := time.Now()
	result := e.execute(ctx, req)
	latency := time.Since(start)

	e.logAudit(ctx, req, result, latency)
	if result.OK {
		e.log.Info("command executed", "command", req.Command, "subscriber", SubscriberFrom(ctx), "latency", latency)
	} else {
		e.log.Warn("command failed", "command", req.Command, "subscriber", SubscriberFrom(ctx), "result", result.Message)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, req Request) Result {
	// Check if a link is live
	l := e.vehicle.Link()
	if l == nil {
		return Failure("not connected")
	}

	// Validate parameters before touching the link
	run, mode, err := prepare(req)
	if err != nil {
		return failure(req.Command, err, 0)
	}

	// Execute command with timeout
	timeout := e.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, l)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return failure(req.Command, err, timeout)
	}

	if req.Command == CommandSetMode {
		e.vehicle.SetMode(mode)
	}
	return Success
}

// timeout returns the configured command deadline.
func (e *Executor) timeout() time.Duration {
	if e.config != nil {
		if cfg := e.config.Current(); cfg != nil && cfg.Commands.Timeout > 0 {
			return cfg.Commands.Timeout
		}
	}
	return defaultTimeout
}

// prepare validates req and binds it to a link primitive. For set_mode the
// normalized mode name is returned as well.
func prepare(req Request) (action, string, error) {
	switch req.Command {
	case CommandArm:
		return func(ctx context.Context, l link.IVehicleLink) error { return l.Arm(ctx) }, "", nil

	case CommandDisarm:
		return func(ctx context.Context, l link.IVehicleLink) error { return l.Disarm(ctx) }, "", nil

	case CommandRebootAutopilot:
		return func(ctx context.Context, l link.IVehicleLink) error { return l.RebootAutopilot(ctx) }, "", nil

	case CommandSetMode:
		mode := strings.ToUpper(paramString(req.Params, "mode"))
		if mode == "" {
			return nil, "", link.InvalidParameter("missing params.mode")
		}
		return func(ctx context.Context, l link.IVehicleLink) error { return l.SetMode(ctx, mode) }, mode, nil

	case CommandRCOverride:
		steering, err := optionalInt(req.Params, "steering")
		if err != nil {
			return nil, "", err
		}
		throttle, err := optionalInt(req.Params, "throttle")
		if err != nil {
			return nil, "", err
		}
		return func(ctx context.Context, l link.IVehicleLink) error {
			return l.OverrideRCChannels(ctx, steering, throttle)
		}, "", nil

	case CommandLong:
		cmd, err := commandLong(req.Params)
		if err != nil {
			return nil, "", err
		}
		return func(ctx context.Context, l link.IVehicleLink) error { return l.SendCommandLong(ctx, cmd) }, "", nil

	default:
		return nil, "", link.InvalidParameter("unknown command %q", string(req.Command))
	}
}

// optionalInt reads an optional integer parameter as a pointer.
func optionalInt(params map[string]any, key string) (*int, error) {
	v, present, err := paramInt(params, key)
	if err != nil {
		return nil, link.InvalidParameter("%v", err)
	}
	if !present {
		return nil, nil
	}
	return &v, nil
}

const maxCommandID = 65535

// commandLong builds a COMMAND_LONG from params. The command id is read from
// "command" or its alias "cmd_id".
func commandLong(params map[string]any) (link.CommandLong, error) {
	var cmd link.CommandLong

	key := "command"
	if _, ok := params[key]; !ok {
		key = "cmd_id"
	}
	id, present, err := paramInt(params, key)
	if err != nil {
		return cmd, link.InvalidParameter("%v", err)
	}
	if !present || id <= 0 {
		return cmd, link.InvalidParameter("params.command must be a positive integer")
	}
	// MAV_CMD is 16 bits on the wire; larger ids would alias another command
	if id > maxCommandID {
		return cmd, link.InvalidParameter("params.command %d out of range 1-%d", id, maxCommandID)
	}
	cmd.Command = id

	for i := range cmd.Params {
		p, _, err := paramFloat(params, fmt.Sprintf("p%d", i+1))
		if err != nil {
			return cmd, link.InvalidParameter("%v", err)
		}
		cmd.Params[i] = float32(p)
	}

	confirmation, _, err := paramInt(params, "confirmation")
	if err != nil {
		return cmd, link.InvalidParameter("%v", err)
	}
	if confirmation < 0 || confirmation > 255 {
		return cmd, link.InvalidParameter("params.confirmation %d out of range 0-255", confirmation)
	}
	cmd.Confirmation = confirmation

	return cmd, nil
}

// failure maps an execution error to the result text shown to subscribers.
func failure(cmd Command, err error, timeout time.Duration) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Failure("Timeout: %s did not complete within %s", cmd, timeout)
	case errors.Is(err, context.Canceled):
		return Failure("Canceled: %s abandoned", cmd)
	case link.KindOf(err) != 0:
		return Failure("%s", err.Error())
	default:
		return Failure("Internal: %v", err)
	}
}

// logAudit logs an audit record for a command action.
func (e *Executor) logAudit(ctx context.Context, req Request, result Result, latency time.Duration) {
	if e.auditLogger != nil {
		e.auditLogger.LogAction(ctx, string(req.Command), req.Params, result, latency)
	}
}
