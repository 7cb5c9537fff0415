package panefs

import (
	"fmt"
	"io"
	"os"
)

// Driver registers one or more schemes on a registry, e.g. local.Register.
type Driver func(r *Registry)

// Builder creates registries from environment configuration. The prefix
// is prepended to every variable name.
type Builder struct {
	prefix string
	logOut io.Writer
	opts   []RegistryOption
}

// WithEnvPrefix creates a Builder reading <prefix>PANEFS_* variables. An
// empty prefix keeps the loader's default.
func WithEnvPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix, logOut: os.Stderr}
}

// LogTo sets where the registry logger writes (default: stderr).
func (b *Builder) LogTo(w io.Writer) *Builder {
	b.logOut = w
	return b
}

// With adds registry options applied after the configuration and logger.
func (b *Builder) With(opts ...RegistryOption) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Config loads the configuration for the builder's prefix.
func (b *Builder) Config() (*Config, error) {
	if b.prefix == "" {
		return GetConfig()
	}
	cfg, err := GetConfigWithPrefix(b.prefix)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// New loads the configuration, builds the logger it describes and returns a
// registry with drivers registered.
func (b *Builder) New(drivers ...Driver) (*Registry, *Config, error) {
	cfg, err := b.Config()
	if err != nil {
		return nil, nil, err
	}
	return NewRegistryFromConfig(cfg, b.logOut, drivers, b.opts...), cfg, nil
}

// NewRegistryFromConfig returns a registry using cfg and a logger built from
// it, with drivers registered.
func NewRegistryFromConfig(cfg *Config, logOut io.Writer, drivers []Driver, opts ...RegistryOption) *Registry {
	base := []RegistryOption{WithConfig(cfg), WithLogger(NewLogger(logOut, cfg))}
	r := NewRegistry(append(base, opts...)...)
	for _, register := range drivers {
		register(r)
	}
	return r
}

// NewFromEnv is WithEnvPrefix("").New(drivers...).
func NewFromEnv(drivers ...Driver) (*Registry, *Config, error) {
	return WithEnvPrefix("").New(drivers...)
}
