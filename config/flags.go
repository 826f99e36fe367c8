package config

import (
	"flag"
)

// Flags holds the command line options shared by the executables. Only flags
// given on the command line override the loaded configuration.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath string

	host     string
	port     int
	codec    string
	logLevel string
	legacy   bool
}

// NewFlags registers the shared options on fs with the defaults of role.
func NewFlags(fs *flag.FlagSet, role Role) *Flags {
	d := Defaults(role)
	f := &Flags{fs: fs}

	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&f.host, "host", d.OSC.Host, "address to bind")
	fs.StringVar(&f.host, "ip", d.OSC.Host, "alias for -host")
	fs.IntVar(&f.port, "port", d.OSC.Port, "port to bind")
	fs.StringVar(&f.codec, "codec", d.OSC.Codec, "wire format: osc or json")
	fs.StringVar(&f.logLevel, "log-level", string(d.Log.Level), "debug, info, warn or error")
	if role == RoleReceiver {
		fs.BoolVar(&f.legacy, "legacy", false, "receive the legacy JSON format on port 12000")
	}
	return f
}

// Apply copies the options set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host", "ip":
			cfg.OSC.Host = f.host
		case "port":
			cfg.OSC.Port = f.port
		case "codec":
			cfg.OSC.Codec = f.codec
		case "log-level":
			cfg.Log.Level = LogLevel(f.logLevel)
		}
	})
}

// Role returns role, or RoleLegacy when a receiver was started with -legacy.
func (f *Flags) Role(role Role) Role {
	if role == RoleReceiver && f.legacy {
		return RoleLegacy
	}
	return role
}

// Load loads the configuration of f.Role(role) from the file named by
// -config and the environment, applies the command line on top and
// validates the result.
func (f *Flags) Load(role Role) (*Config, error) {
	cfg, err := Load(f.Role(role), f.ConfigPath)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
