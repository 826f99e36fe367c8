package config

import (
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/osc-t2s/osc-t2s/osc"
)

// Environment variables read by ApplyEnv.
const (
	EnvHost        = "OSC_HOST"
	EnvPort        = "OSC_PORT"
	EnvTargetHost  = "OSC_TARGET_HOST"
	EnvTargetPort  = "OSC_TARGET_PORT"
	EnvCodec       = "OSC_CODEC"
	EnvReadTimeout = "OSC_READ_TIMEOUT"
	EnvRelayAddr   = "RELAY_ADDR"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
)

// Load returns the configuration for role: defaults, then the YAML file at
// path (if path is not empty), then .env files and the process environment.
// The result is validated.
func Load(role Role, path string) (*Config, error) {
	cfg := Defaults(role)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: open %q", path)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %q", path)
		}
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults of role and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(role Role, r io.Reader) (*Config, error) {
	cfg := Defaults(role)
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "config: decode yaml")
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given, without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Wrapf(err, "config: load %q", p)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the variables lookup finds.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, errors.Errorf("%s=%q is not a number", key, v))
				return
			}
			*dst = n
		}
	}

	str(&cfg.OSC.Host, EnvHost)
	num(&cfg.OSC.Port, EnvPort)
	str(&cfg.OSC.TargetHost, EnvTargetHost)
	num(&cfg.OSC.TargetPort, EnvTargetPort)
	str(&cfg.OSC.Codec, EnvCodec)
	str(&cfg.Relay.Addr, EnvRelayAddr)

	if v, ok := lookup(EnvReadTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, errors.Errorf("%s=%q is not a duration", EnvReadTimeout, v))
		} else {
			cfg.OSC.ReadTimeout = d
		}
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = LogLevel(v)
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Log.Format = LogFormat(v)
	}

	return stderrors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.OSC.Port < 0 || cfg.OSC.Port > 65535 {
		errs = append(errs, errors.Errorf("osc.port %d is out of range [0, 65535]", cfg.OSC.Port))
	}
	if cfg.OSC.TargetPort < 0 || cfg.OSC.TargetPort > 65535 {
		errs = append(errs, errors.Errorf("osc.target_port %d is out of range [0, 65535]", cfg.OSC.TargetPort))
	}
	if cfg.OSC.TargetPort != 0 && cfg.OSC.TargetHost == "" {
		errs = append(errs, errors.New("osc.target_host is required when osc.target_port is set"))
	}
	if _, err := osc.CodecByName(cfg.OSC.Codec); err != nil {
		errs = append(errs, errors.Errorf("osc.codec %q is invalid; valid values: osc, json", cfg.OSC.Codec))
	}
	if cfg.OSC.ReadTimeout < 0 {
		errs = append(errs, errors.Errorf("osc.read_timeout %s is negative", cfg.OSC.ReadTimeout))
	}

	if cfg.Relay.Rate < 0 {
		errs = append(errs, errors.Errorf("relay.rate %v is negative", cfg.Relay.Rate))
	}
	if cfg.Relay.Burst < 0 {
		errs = append(errs, errors.Errorf("relay.burst %d is negative", cfg.Relay.Burst))
	}

	if cfg.Session.Timeout < 0 {
		errs = append(errs, errors.Errorf("session.timeout %s is negative", cfg.Session.Timeout))
	}
	if cfg.Session.Timeout > 0 && cfg.Session.ExpireInterval <= 0 {
		errs = append(errs, errors.New("session.expire_interval must be positive when session.timeout is set"))
	}

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, errors.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, errors.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	return stderrors.Join(errs...)
}

// Bind returns the local endpoint of the channel.
func (c OSCConfig) Bind() osc.Endpoint {
	return osc.Endpoint{Host: c.Host, Port: c.Port}
}

// Target returns the default destination of the channel.
func (c OSCConfig) Target() osc.Endpoint {
	return osc.Endpoint{Host: c.TargetHost, Port: c.TargetPort}
}
