package tracker

import (
	"sync"
)

var (
	defaultOnce    sync.Once
	defaultTracker *Synchronized
)

// Default returns the process-wide tracker, building it on first call from
// the MEMTRACE_* environment. An invalid environment falls back to
// DefaultConfig with a warning.
func Default() *Synchronized {
	defaultOnce.Do(func() {
		cfg, err := LoadConfig()
		fallback := err != nil
		if fallback {
			cfg = DefaultConfig()
		}
		t, err2 := New(cfg)
		if err2 != nil {
			// DefaultConfig always validates.
			panic(err2)
		}
		if fallback {
			t.logger.Warn().Err(err).Msg("Invalid tracker environment, using defaults")
		}
		defaultTracker = NewSynchronized(t)
	})
	return defaultTracker
}

// Shutdown closes the process-wide tracker and returns its leak report.
func Shutdown() (LeakReport, error) {
	return Default().Close()
}
