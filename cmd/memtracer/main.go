package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/23skdu/memtracer/internal/logging"
	"github.com/23skdu/memtracer/tracker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = os.Stderr.WriteString("failed to load .env: " + err.Error() + "\n")
	}

	tcfg, err := tracker.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid tracker config: " + err.Error() + "\n")
		return 2
	}
	logger, err := logging.NewLogger(logging.Config{Format: tcfg.LogFormat, Level: tcfg.LogLevel, Output: os.Stderr})
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid logger config: " + err.Error() + "\n")
		return 2
	}
	logger = logger.With().Str("component", "memtracer").Logger()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid demo config")
		return 2
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	tr, err := tracker.New(tcfg, tracker.WithLogger(logger))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create tracker")
		return 2
	}
	s := tracker.NewSynchronized(tr)

	code := 0
	if _, err := workload(s, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Workload failed")
		if tracker.IsConsistencyViolation(err) {
			return 1
		}
		code = 1
	}

	report, err := s.Close()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write leak report")
		code = 1
	}
	logger.Info().
		Int("leaks", report.TotalLeaks).
		Int64("leaked_bytes", report.TotalBytes).
		Msg("Tracker shut down")
	return code
}

// workload runs the demo, converting tracker panics into errors so a
// consistency violation terminates with a non-zero exit status.
func workload(s *tracker.Synchronized, cfg Config, logger zerolog.Logger) (leaked []*Complex, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	return runWorkload(s, cfg, logger)
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("address", addr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
