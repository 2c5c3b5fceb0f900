//
//
package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate enforces configuration rules.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	// Validate link configuration
	if err := validateLink(&config.Link); err != nil {
		return fmt.Errorf("link validation failed: %w", err)
	}

	// Validate server configuration
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	// Validate command timeout
	if config.Commands.Timeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", config.Commands.Timeout)
	}

	// Validate video probe
	if config.Video.ProbeInterval <= 0 {
		return fmt.Errorf("video probe interval must be positive, got %v", config.Video.ProbeInterval)
	}
	if config.Video.ProbeBytes <= 0 {
		return fmt.Errorf("video probe bytes must be positive, got %d", config.Video.ProbeBytes)
	}

	// Validate logging
	if err := validateLog(&config.Log); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	// Validate auth
	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	// Validate recorder
	if config.Recorder.Enabled {
		if config.Recorder.Path == "" {
			return fmt.Errorf("recorder path must be set when recorder is enabled")
		}
		if config.Recorder.Interval <= 0 {
			return fmt.Errorf("recorder interval must be positive, got %v", config.Recorder.Interval)
		}
	}

	return nil
}

// validateLink validates link timing parameters.
func validateLink(link *LinkConfig) error {
	// Baud rate only matters for serial targets but must be sane regardless
	if link.Baudrate <= 0 {
		return fmt.Errorf("baudrate must be positive, got %d", link.Baudrate)
	}

	if link.HeartbeatTimeout < 0 {
		return fmt.Errorf("heartbeat timeout must be non-negative, got %v", link.HeartbeatTimeout)
	}

	// Receive timeout bounds shutdown latency
	if link.ReceiveTimeout <= 0 || link.ReceiveTimeout > 5*time.Second {
		return fmt.Errorf("receive timeout must be in (0, 5s], got %v", link.ReceiveTimeout)
	}

	if link.IdlePoll <= 0 {
		return fmt.Errorf("idle poll must be positive, got %v", link.IdlePoll)
	}

	// Backoff configuration
	if link.Backoff.Initial <= 0 {
		return fmt.Errorf("backoff initial must be positive, got %v", link.Backoff.Initial)
	}
	if link.Backoff.Factor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0, got %v", link.Backoff.Factor)
	}
	if link.Backoff.Max < link.Backoff.Initial {
		return fmt.Errorf("backoff max %v must be >= initial %v", link.Backoff.Max, link.Backoff.Initial)
	}

	if link.SystemID == 0 {
		return fmt.Errorf("system id must be in [1, 255]")
	}

	return nil
}

// validateServer validates HTTP and session parameters.
func validateServer(server *ServerConfig) error {
	if server.Addr == "" {
		return fmt.Errorf("listen address must be set")
	}
	if server.PublishInterval <= 0 {
		return fmt.Errorf("publish interval must be positive, got %v", server.PublishInterval)
	}
	if server.ReadTimeout < 0 || server.WriteTimeout < 0 || server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}
	return nil
}

// validateLog validates the log level and format.
func validateLog(log *LogConfig) error {
	switch strings.ToLower(log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", log.Level)
	}

	switch strings.ToLower(log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", log.Format)
	}
	return nil
}

// validateAuth validates token verification settings when auth is enabled.
func validateAuth(auth *AuthConfig) error {
	if !auth.Enabled {
		return nil
	}

	switch auth.Algorithm {
	case "HS256":
		if auth.Secret == "" {
			return fmt.Errorf("HS256 requires a secret")
		}
	case "RS256":
		if auth.PublicKeyPEM == "" {
			return fmt.Errorf("RS256 requires a public key")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", auth.Algorithm)
	}
	return nil
}
