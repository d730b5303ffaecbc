package main

import (
	"context"

	"go.uber.org/zap"

	"mirnadb/internal/config"
	"mirnadb/internal/metrics"
	"mirnadb/internal/metrics/datadog"
)

// setupMetrics installs the configured metrics backend and returns its
// shutdown. Failures to initialise leave the nop backend in place.
func setupMetrics(cfg config.MetricsConfig, log *zap.Logger) func() {
	switch cfg.Backend {
	case "datadog":
		// Close() stops the periodic flush loop and then performs a final Flush().
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "mirnadb",
			Tags:       cfg.Tags,
			FlushEvery: cfg.FlushEvery,
		})
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", zap.Error(err))
			return func() {}
		}
		log.Debug("metrics enabled", zap.String("backend", cfg.Backend), zap.Strings("tags", cfg.Tags))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		return func() {}

	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", cfg.Backend))
		return func() {}
	}
}
