// Package config loads settings for the osc-t2s executables from defaults,
// a YAML file, .env files and the environment, in that order of precedence.
package config

import (
	"time"
)

// Role selects the defaults of an executable.
type Role string

const (
	// RoleReceiver listens for control messages on the server port.
	RoleReceiver Role = "receiver"
	// RoleClient sends commands to a server and listens on the client port.
	RoleClient Role = "client"
	// RoleServer runs the speech controller and the websocket relay.
	RoleServer Role = "server"
	// RoleLegacy listens for JSON encoded messages on the legacy port.
	RoleLegacy Role = "legacy"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleReceiver, RoleClient, RoleServer, RoleLegacy:
		return true
	}
	return false
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == FormatText || f == FormatJSON
}

// Config is the complete configuration of an executable.
type Config struct {
	OSC     OSCConfig     `yaml:"osc"`
	Relay   RelayConfig   `yaml:"relay"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// OSCConfig configures the UDP channel.
type OSCConfig struct {
	// Host and Port are the local bind address.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// TargetHost and TargetPort are the default destination. A zero port
	// means the channel only replies.
	TargetHost string `yaml:"target_host"`
	TargetPort int    `yaml:"target_port"`

	// Codec is "osc" or "json".
	Codec string `yaml:"codec"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// RelayConfig configures the websocket relay. An empty Addr disables it.
type RelayConfig struct {
	Addr  string  `yaml:"addr"`
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// SessionConfig configures handshake session expiry. A zero Timeout keeps
// sessions forever.
type SessionConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	ExpireInterval time.Duration `yaml:"expire_interval"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Defaults returns the configuration of role before any file or environment
// is applied.
func Defaults(role Role) *Config {
	cfg := &Config{
		OSC: OSCConfig{
			Host:        "127.0.0.1",
			Codec:       "osc",
			ReadTimeout: 250 * time.Millisecond,
		},
		Log: LogConfig{Level: LogInfo, Format: FormatText},
	}

	switch role {
	case RoleReceiver:
		cfg.OSC.Port = 57120
	case RoleClient:
		cfg.OSC.Port = 57121
		cfg.OSC.TargetHost = "127.0.0.1"
		cfg.OSC.TargetPort = 57120
	case RoleServer:
		cfg.OSC.Port = 57120
		cfg.Relay = RelayConfig{Addr: "127.0.0.1:8081", Rate: 20, Burst: 10}
		cfg.Session = SessionConfig{Timeout: 5 * time.Minute, ExpireInterval: 30 * time.Second}
	case RoleLegacy:
		cfg.OSC.Port = 12000
		cfg.OSC.Codec = "json"
	}
	return cfg
}
