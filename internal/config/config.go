package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Server   ServerConfig   `yaml:"server"`
	Commands CommandsConfig `yaml:"commands"`
	Video    VideoConfig    `yaml:"video"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// LinkConfig controls how the vehicle link is opened and supervised.
type LinkConfig struct {
	// Target is a serial device or udp:/udpin:/udpout:/tcp:/tcpin: address.
	// Empty leaves the supervisor idle.
	Target   string `yaml:"target"`
	Baudrate int    `yaml:"baudrate"`

	HeartbeatTimeout time.Duration `yaml:"heartbeatTimeout"`
	ReceiveTimeout   time.Duration `yaml:"receiveTimeout"`
	IdlePoll         time.Duration `yaml:"idlePoll"`
	Backoff          BackoffConfig `yaml:"backoff"`

	// SystemID is our own MAVLink system id
	SystemID uint8 `yaml:"systemId"`
}

// BackoffConfig is an exponential reconnect schedule.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Factor  float64       `yaml:"factor"`
	Max     time.Duration `yaml:"max"`
}

// ServerConfig controls the HTTP listener and subscriber sessions.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"staticDir"`
	PublishInterval time.Duration `yaml:"publishInterval"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
}

// CommandsConfig bounds command execution.
type CommandsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// VideoConfig describes the video stream probed for liveness.
type VideoConfig struct {
	URL           string        `yaml:"url"`
	ProbeInterval time.Duration `yaml:"probeInterval"`
	ProbeBytes    int           `yaml:"probeBytes"`
}

// AuditConfig controls the command audit log.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AuthConfig enables bearer-token authentication.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Algorithm    string `yaml:"algorithm"`
	Secret       string `yaml:"secret"`
	PublicKeyPEM string `yaml:"publicKeyPEM"`
}

// RecorderConfig enables the SQLite telemetry recorder.
type RecorderConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Link: LinkConfig{
			Baudrate:         115200,
			HeartbeatTimeout: 8 * time.Second,
			ReceiveTimeout:   1 * time.Second,
			IdlePoll:         500 * time.Millisecond,
			Backoff: BackoffConfig{
				Initial: 1 * time.Second,
				Factor:  1.8,
				Max:     10 * time.Second,
			},
			SystemID: 255,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			StaticDir:       "frontend",
			PublishInterval: 250 * time.Millisecond,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
		},
		Commands: CommandsConfig{
			Timeout: 5 * time.Second,
		},
		Video: VideoConfig{
			ProbeInterval: 10 * time.Second,
			ProbeBytes:    1024,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
		},
		Recorder: RecorderConfig{
			Path:     "data/telemetry.sqlite",
			Interval: 1 * time.Second,
		},
	}
}

// Clone returns a copy of c. Config holds no reference types, so a value copy
// is a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
