// Package main implements the MAVLink bridge entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/radio-control/mavbridge/internal/api"
	"github.com/radio-control/mavbridge/internal/audit"
	"github.com/radio-control/mavbridge/internal/auth"
	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/config"
	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/probe"
	"github.com/radio-control/mavbridge/internal/recorder"
	"github.com/radio-control/mavbridge/internal/session"
	"github.com/radio-control/mavbridge/internal/supervisor"
	"github.com/radio-control/mavbridge/internal/vehicle"
)

const (
	Version         = "1.0.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, addr, target, logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("mavbridge", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: config.yaml, config.yml or config.json in the working directory)")
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address, overrides server.addr")
	flagSet.StringVar(&target, "target", "", "vehicle link target, e.g. /dev/ttyACM0 or udpin:0.0.0.0:14550")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("mavbridge %s\n", Version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	// Step 1: Load configuration, flags on top of file and environment
	store, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("addr") || flagSet.Changed("target") || flagSet.Changed("log-level") {
		err := store.Override(func(c *config.Config) {
			if flagSet.Changed("addr") {
				c.Server.Addr = addr
			}
			if flagSet.Changed("target") {
				c.Link.Target = target
			}
			if flagSet.Changed("log-level") {
				c.Log.Level = logLevel
			}
		})
		if err != nil {
			return err
		}
	}
	cfg := store.Current()

	// Step 2: Logging
	logger, level, logCloser := newLogger(cfg.Log, os.Stderr)
	defer logCloser.Close()
	logger.Info("Starting mavbridge", "version", Version, logAttrs(cfg))

	// Step 3: Shared vehicle state and link supervisor
	v := vehicle.New()
	sup := supervisor.New(store, link.MAVLinkDialer, v, logger)

	// Step 4: Command audit sinks
	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer auditLogger.Close()
	sinks := command.AuditLoggers{auditLogger}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open recorder: %w", err)
		}
		defer rec.Close()
		sinks = append(sinks, rec)
		logger.Info("Recorder enabled", "path", rec.Path(), "interval", cfg.Recorder.Interval)
	}

	// Step 5: Command executor
	executor := command.NewExecutor(v, store, logger)
	executor.SetAuditLogger(sinks)

	// Step 6: API server with subscriber hub
	authMiddleware, err := auth.NewMiddlewareFromConfig(cfg.Auth)
	if err != nil {
		return err
	}
	hub := session.NewHub(logger)
	prober := probe.New(store, v, nil, logger)

	deps := api.Deps{
		Config:    store,
		Vehicle:   v,
		Executor:  executor,
		Link:      sup,
		Hub:       hub,
		Auth:      authMiddleware,
		Probe:     prober,
		ListPorts: link.ListSerialPorts,
	}
	if rec != nil {
		deps.History = rec
	}
	server := api.NewServer(deps, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live reconfiguration on SIGHUP
	store.OnChange(func(c *config.Config) {
		level.Set(parseLevel(c.Log.Level))
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("component stopped", "component", name, "error", err)
			}
		}()
	}
	goRun("supervisor", sup.Run)
	goRun("probe", prober.Run)
	if rec != nil {
		goRun("recorder", func(ctx context.Context) error {
			return rec.Run(ctx, v, cfg.Recorder.Interval)
		})
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Server.Addr)
	}()

	// Step 7: Wait for shutdown signal or server error
	var runErr error
	for running := true; running; {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown requested")
			running = false
		case err := <-serverErr:
			if err != nil {
				runErr = err
				logger.Error("HTTP server failed", "error", err)
			}
			stop()
			running = false
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Warn("Configuration reload failed", "error", err)
				hub.Broadcast(session.LevelWarning, fmt.Sprintf("Config reload failed: %v", err))
				continue
			}
			logger.Info("Configuration reloaded", "target", store.Current().Link.Target)
			hub.Broadcast(session.LevelInfo, "Config reloaded")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for components to stop")
	}

	logger.Info("mavbridge shutdown complete", "supervisor", sup.State().String())
	return runErr
}

// logAttrs is the slog group for startup configuration.
func logAttrs(cfg *config.Config) slog.Attr {
	return slog.Group("config",
		slog.String("target", cfg.Link.Target),
		slog.Int("baudrate", cfg.Link.Baudrate),
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("auth", cfg.Auth.Enabled),
		slog.Bool("recorder", cfg.Recorder.Enabled),
	)
}
