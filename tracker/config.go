package tracker

import (
	"errors"

	"github.com/kelseyhightower/envconfig"

	trackererrors "github.com/23skdu/memtracer/internal/errors"
)

// EnvPrefix is the environment prefix processed by LoadConfig.
const EnvPrefix = "MEMTRACE"

// Config holds the tracker switches.
type Config struct {
	// Name labels the tracker's metrics.
	Name string `envconfig:"NAME" default:"default"`

	// ShowAllocs logs a line for every allocation and enrichment.
	ShowAllocs bool `envconfig:"SHOW_ALLOCS" default:"false"`
	// ShowDeallocs logs a line for every release.
	ShowDeallocs bool `envconfig:"SHOW_DEALLOCS" default:"false"`

	// DumpLeaksToFile duplicates the shutdown leak report into LeakReportPath.
	// The file is truncated when the tracker becomes active.
	DumpLeaksToFile bool   `envconfig:"DUMP_LEAKS" default:"false"`
	LeakReportPath  string `envconfig:"LEAK_REPORT_PATH" default:"memleaks.log"`

	// LeakSnapshotPath, when set, receives the leaked records as Parquet rows.
	LeakSnapshotPath string `envconfig:"LEAK_SNAPSHOT_PATH" default:""`

	// MemoryLimit bounds the raw bytes (headers included) outstanding in the
	// underlying allocator. 0 disables the bound.
	MemoryLimit int64 `envconfig:"MEMORY_LIMIT" default:"0"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Config validation errors
var (
	ErrInvalidName        = errors.New("name cannot be empty")
	ErrInvalidReportPath  = errors.New("leak_report_path cannot be empty when dump_leaks is set")
	ErrInvalidMemoryLimit = errors.New("memory_limit cannot be negative")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
)

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Name:           "default",
		LeakReportPath: "memleaks.log",
		LogFormat:      "console",
		LogLevel:       "info",
	}
}

// LoadConfig reads the configuration from MEMTRACE_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, trackererrors.WrapConfigurationError(err, "load_config", "failed to process environment")
	}
	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.Name == "" {
		return ErrInvalidName
	}
	if cfg.DumpLeaksToFile && cfg.LeakReportPath == "" {
		return ErrInvalidReportPath
	}
	if cfg.MemoryLimit < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	return nil
}
