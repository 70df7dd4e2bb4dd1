package tagpool

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is a pool's configuration (spec.md §6).
type Config struct {
	// Namespace partitions one logical cache's id-space from another.
	// Validated like keys/tags and prepended to every item and tag id as
	// is, with no separator.
	Namespace string `mapstructure:"namespace"`

	// DefaultLifetime is used when a saved item carries no explicit
	// expiry. Zero means no expiry unless the backend enforces one.
	DefaultLifetime time.Duration `mapstructure:"default_lifetime"`
}

// StoreConfig names a driver and carries its driver-specific options, for
// use by a multi-store Registry (registry.go).
type StoreConfig struct {
	// Driver is the backend driver name ("filesystem", "redis").
	Driver string `mapstructure:"driver"`

	// Namespace overrides the registry-wide namespace for this store.
	Namespace string `mapstructure:"namespace"`

	// DefaultLifetime overrides the registry-wide default for this store.
	DefaultLifetime time.Duration `mapstructure:"default_lifetime"`

	// Options contains driver-specific configuration (e.g. filesystem
	// directory, Redis host/port).
	Options map[string]any `mapstructure:"options"`
}

// Decode decodes the store options into the target struct.
func (c StoreConfig) Decode(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(c.Options)
}

// DefaultConfig returns a zero-value, ready-to-use pool configuration.
func DefaultConfig() Config {
	return Config{}
}

// WithNamespace sets the namespace.
func (c Config) WithNamespace(ns string) Config {
	c.Namespace = ns
	return c
}

// WithDefaultLifetime sets the default item lifetime.
func (c Config) WithDefaultLifetime(ttl time.Duration) Config {
	c.DefaultLifetime = ttl
	return c
}
