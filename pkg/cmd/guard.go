package cmd

import (
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/guard"
)

// NewGuard creates the dispatch guard. Redis backs the shared cooldown and
// daily-cap state when a URL is configured; the in-memory guard covers
// single-process deployments.
func NewGuard(redisURL string, logger *slog.Logger) guard.Guard {
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory dispatch guard")

		return guard.NewMemoryGuard()
	}

	redisGuard, err := guard.NewRedisGuard(redisURL, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect dispatch guard to redis: %w", err))
	}

	return redisGuard
}
