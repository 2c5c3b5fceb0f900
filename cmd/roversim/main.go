// Package main runs a simulated ArduRover for exercising mavbridge without
// hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/radio-control/mavbridge/internal/sim"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts := sim.DefaultOptions()
	var endpoint, logLevel string
	var baudrate int
	var rate time.Duration
	var systemID uint8

	flagSet := pflag.NewFlagSet("roversim", pflag.ContinueOnError)
	flagSet.StringVarP(&endpoint, "endpoint", "e", "udpout:127.0.0.1:14550", "MAVLink endpoint: udpout:, udpin:, tcp:, tcpin: or a serial device")
	flagSet.IntVar(&baudrate, "baudrate", 57600, "baud rate for serial endpoints")
	flagSet.DurationVar(&rate, "rate", 200*time.Millisecond, "telemetry period")
	flagSet.Uint8Var(&systemID, "system-id", opts.SystemID, "MAVLink system id of the rover")
	flagSet.Float64Var(&opts.Lat, "lat", opts.Lat, "home latitude in degrees")
	flagSet.Float64Var(&opts.Lon, "lon", opts.Lon, "home longitude in degrees")
	flagSet.DurationVar(&opts.RebootBlackout, "reboot-blackout", opts.RebootBlackout, "silence after a reboot command")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	opts.SystemID = systemID

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rover := sim.NewRover(opts)
	server, err := sim.NewServer(rover, endpoint, baudrate, rate, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting rover simulator", "endpoint", endpoint, "system_id", opts.SystemID, "rate", rate)
	return server.Run(ctx)
}
