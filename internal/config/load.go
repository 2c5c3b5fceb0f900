//
//
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPaths are tried in order when no explicit config path is given.
var DefaultPaths = []string{"config.yaml", "config.yml", "config.json"}

// legacyConfig holds the flat keys of the original config.json.
type legacyConfig struct {
	SerialPort string `yaml:"serial_port"`
	Baudrate   int    `yaml:"baudrate"`
	VideoURL   string `yaml:"video_url"`
}

// Load merges Defaults() + optional config file + env overrides (MAVBRIDGE_*),
// then validates. An empty path tries DefaultPaths; a missing default file is
// not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	// Start with baseline
	config := Defaults()

	// Resolve the config file
	explicit := path != ""
	if !explicit {
		path = findDefaultPath()
	}

	// Merge file configuration
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decodeInto(config, data); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate the final configuration
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// findDefaultPath returns the first existing default config file, or "".
func findDefaultPath() string {
	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// decodeInto overlays YAML (or JSON, which YAML accepts) onto config. The
// flat serial_port/baudrate/video_url keys are honoured when the structured
// keys leave them unset.
func decodeInto(config *Config, data []byte) error {
	if err := yaml.Unmarshal(data, config); err != nil {
		return err
	}

	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if config.Link.Target == "" && legacy.SerialPort != "" {
		config.Link.Target = legacy.SerialPort
	}
	if legacy.Baudrate != 0 {
		config.Link.Baudrate = legacy.Baudrate
	}
	if config.Video.URL == "" && legacy.VideoURL != "" {
		config.Video.URL = legacy.VideoURL
	}
	return nil
}

// applyEnvOverrides applies MAVBRIDGE_* environment variables to the config.
// Unparseable values are ignored.
func applyEnvOverrides(config *Config) error {
	// Link configuration
	if val := os.Getenv("MAVBRIDGE_TARGET"); val != "" {
		config.Link.Target = strings.TrimSpace(val)
	}

	if val := os.Getenv("MAVBRIDGE_BAUDRATE"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			config.Link.Baudrate = baud
		}
	}

	config.Link.HeartbeatTimeout = GetEnvDuration("MAVBRIDGE_HEARTBEAT_TIMEOUT", config.Link.HeartbeatTimeout)
	config.Link.ReceiveTimeout = GetEnvDuration("MAVBRIDGE_RECEIVE_TIMEOUT", config.Link.ReceiveTimeout)
	config.Link.Backoff.Initial = GetEnvDuration("MAVBRIDGE_BACKOFF_INITIAL", config.Link.Backoff.Initial)
	config.Link.Backoff.Factor = GetEnvFloat("MAVBRIDGE_BACKOFF_FACTOR", config.Link.Backoff.Factor)
	config.Link.Backoff.Max = GetEnvDuration("MAVBRIDGE_BACKOFF_MAX", config.Link.Backoff.Max)

	if val := os.Getenv("MAVBRIDGE_SYSTEM_ID"); val != "" {
		if id, err := strconv.ParseUint(val, 10, 8); err == nil {
			config.Link.SystemID = uint8(id)
		}
	}

	// Server configuration
	config.Server.Addr = GetEnvVar("MAVBRIDGE_ADDR", config.Server.Addr)
	config.Server.StaticDir = GetEnvVar("MAVBRIDGE_STATIC_DIR", config.Server.StaticDir)
	config.Server.PublishInterval = GetEnvDuration("MAVBRIDGE_PUBLISH_INTERVAL", config.Server.PublishInterval)

	// Command timeout
	config.Commands.Timeout = GetEnvDuration("MAVBRIDGE_COMMAND_TIMEOUT", config.Commands.Timeout)

	// Video probe
	config.Video.URL = GetEnvVar("MAVBRIDGE_VIDEO_URL", config.Video.URL)
	config.Video.ProbeInterval = GetEnvDuration("MAVBRIDGE_VIDEO_PROBE_INTERVAL", config.Video.ProbeInterval)

	// Audit and logging
	config.Audit.Dir = GetEnvVar("MAVBRIDGE_AUDIT_DIR", config.Audit.Dir)
	config.Log.Level = GetEnvVar("MAVBRIDGE_LOG_LEVEL", config.Log.Level)
	config.Log.Format = GetEnvVar("MAVBRIDGE_LOG_FORMAT", config.Log.Format)
	config.Log.File = GetEnvVar("MAVBRIDGE_LOG_FILE", config.Log.File)

	// Auth
	config.Auth.Enabled = GetEnvBool("MAVBRIDGE_AUTH_ENABLED", config.Auth.Enabled)
	config.Auth.Algorithm = GetEnvVar("MAVBRIDGE_AUTH_ALGORITHM", config.Auth.Algorithm)
	config.Auth.Secret = GetEnvVar("MAVBRIDGE_AUTH_SECRET", config.Auth.Secret)

	// Recorder
	config.Recorder.Enabled = GetEnvBool("MAVBRIDGE_RECORDER_ENABLED", config.Recorder.Enabled)
	config.Recorder.Path = GetEnvVar("MAVBRIDGE_RECORDER_PATH", config.Recorder.Path)

	return nil
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvFloat returns the value of an environment variable as a float64 with a default.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GetEnvBool returns the value of an environment variable as a bool with a default.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
