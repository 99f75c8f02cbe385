package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	dayKeyTTL       = 48 * time.Hour
)

// RedisGuard enforces cooldown and daily cap across activator replicas.
// The cooldown is a SET NX PX claim, the daily cap an INCR on a per-day
// counter; when the counter overshoots the cap the cooldown claim is
// released so the suppressed attempt does not start a cooldown window.
type RedisGuard struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisGuard(url string, logger *slog.Logger) (*RedisGuard, error) {
	if url == "" {
		url = defaultRedisURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return NewRedisGuardWithClient(client, logger), nil
}

func NewRedisGuardWithClient(client *redis.Client, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{
		client: client,
		logger: logger.With("module", "redis_guard"),
	}
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

func (g *RedisGuard) Allow(ctx context.Context, workflow *models.Workflow, now time.Time) (Decision, error) {
	if !withinActiveHours(workflow, now) {
		return Decision{Reason: ReasonActiveHours}, nil
	}

	cooldownClaimed := false

	if cooldown := workflow.Settings.CooldownMinutes; cooldown > 0 {
		ttl := time.Duration(cooldown) * time.Minute

		claimed, err := g.client.SetNX(ctx, cooldownKey(workflow.ID), now.Unix(), ttl).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("claim cooldown for workflow %s: %w", workflow.ID, err)
		}

		if !claimed {
			return Decision{Reason: ReasonCooldown}, nil
		}

		cooldownClaimed = true
	}

	if maxPerDay := workflow.Settings.MaxExecutionsPerDay; maxPerDay > 0 {
		key := capKey(workflow.ID, dayKey(workflow, now))

		count, err := g.client.Incr(ctx, key).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("increment daily counter for workflow %s: %w", workflow.ID, err)
		}

		if count == 1 {
			g.client.Expire(ctx, key, dayKeyTTL)
		}

		if count > int64(maxPerDay) {
			if cooldownClaimed {
				if err := g.client.Del(ctx, cooldownKey(workflow.ID)).Err(); err != nil {
					g.logger.Warn("Failed to release cooldown after cap hit",
						"workflow_id", workflow.ID, "error", err)
				}
			}

			return Decision{Reason: ReasonDailyCap}, nil
		}
	}

	return allow, nil
}

func cooldownKey(workflowID string) string {
	return "pulse:guard:cooldown:" + workflowID
}

func capKey(workflowID, day string) string {
	return "pulse:guard:daycount:" + workflowID + ":" + day
}
