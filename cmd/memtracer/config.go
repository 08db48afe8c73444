package main

import (
	"errors"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the demo switches. Tracker switches are read separately by
// tracker.LoadConfig from the same MEMTRACE_ prefix.
type Config struct {
	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	Rounds      int `envconfig:"DEMO_ROUNDS" default:"3"`
	ArrayLen    int `envconfig:"DEMO_ARRAY_LEN" default:"100"`
	Objects     int `envconfig:"DEMO_OBJECTS" default:"5"`
	LeakObjects int `envconfig:"DEMO_LEAK_OBJECTS" default:"2"`
}

// Config validation errors
var (
	ErrInvalidRounds      = errors.New("demo_rounds must be positive")
	ErrInvalidArrayLen    = errors.New("demo_array_len cannot be negative")
	ErrInvalidObjects     = errors.New("demo_objects cannot be negative")
	ErrInvalidLeakObjects = errors.New("demo_leak_objects must be between 0 and demo_objects")
)

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Rounds:      3,
		ArrayLen:    100,
		Objects:     5,
		LeakObjects: 2,
	}
}

// LoadConfig reads the demo configuration from MEMTRACE_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("MEMTRACE", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, ValidateConfig(&cfg)
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.Rounds <= 0 {
		return ErrInvalidRounds
	}
	if cfg.ArrayLen < 0 {
		return ErrInvalidArrayLen
	}
	if cfg.Objects < 0 {
		return ErrInvalidObjects
	}
	if cfg.LeakObjects < 0 || cfg.LeakObjects > cfg.Objects {
		return ErrInvalidLeakObjects
	}
	return nil
}
