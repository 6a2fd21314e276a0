package usersync

import (
	"context"
	"log/slog"
	"time"
)

// Readiness defaults: up to 12 probes at 5 second spacing, a 60 second budget.
const (
	DefaultMaxAttempts = 12
	DefaultInterval    = 5 * time.Second
)

// AwaitReady blocks until the identity provider answers a probe or the
// attempt budget is exhausted. Each attempt waits interval before probing.
// It returns false, without failing the host process, when the provider never
// became ready; the caller is expected to skip the startup pass.
func AwaitReady(ctx context.Context, probe func(context.Context) error, maxAttempts int, interval time.Duration, logger *slog.Logger) bool {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Warn("readiness wait cancelled", "attempt", attempt)
			return false
		case <-time.After(interval):
		}

		logger.Info("probing identity provider", "attempt", attempt, "max_attempts", maxAttempts)
		if err := probe(ctx); err != nil {
			logger.Warn("identity provider not ready yet", "attempt", attempt, "max_attempts", maxAttempts, "error", err)
			continue
		}

		logger.Info("identity provider is ready")
		return true
	}

	logger.Error("identity provider not ready, giving up", "max_attempts", maxAttempts)
	return false
}
