package shutdown

import "time"

// Config holds configuration for the shutdown manager.
type Config struct {
	// OverallTimeout bounds all hooks together.
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`

	// PerHookTimeout bounds a single hook.
	PerHookTimeout time.Duration `mapstructure:"per_hook_timeout"`

	// SlowHookThreshold is the duration after which a hook is logged as slow.
	SlowHookThreshold time.Duration `mapstructure:"slow_hook_threshold"`
}

// DefaultConfig returns the default shutdown configuration.
func DefaultConfig() Config {
	return Config{
		OverallTimeout:    30 * time.Second,
		PerHookTimeout:    10 * time.Second,
		SlowHookThreshold: 5 * time.Second,
	}
}

// withDefaults replaces non-positive values with the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = d.OverallTimeout
	}
	if c.PerHookTimeout <= 0 {
		c.PerHookTimeout = d.PerHookTimeout
	}
	if c.SlowHookThreshold <= 0 {
		c.SlowHookThreshold = d.SlowHookThreshold
	}
	return c
}
