package guard

import (
	"context"
	"sync"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// MemoryGuard enforces the same policy as RedisGuard within a single
// process. Suitable for dev and single-node deployments.
type MemoryGuard struct {
	mu         sync.Mutex
	cooldowns  map[string]time.Time
	dayCounts  map[string]int
	currentDay map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		cooldowns:  make(map[string]time.Time),
		dayCounts:  make(map[string]int),
		currentDay: make(map[string]string),
	}
}

func (g *MemoryGuard) Allow(_ context.Context, workflow *models.Workflow, now time.Time) (Decision, error) {
	if !withinActiveHours(workflow, now) {
		return Decision{Reason: ReasonActiveHours}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cooldown := workflow.Settings.CooldownMinutes; cooldown > 0 {
		if until, ok := g.cooldowns[workflow.ID]; ok && now.Before(until) {
			return Decision{Reason: ReasonCooldown}, nil
		}
	}

	if maxPerDay := workflow.Settings.MaxExecutionsPerDay; maxPerDay > 0 {
		day := dayKey(workflow, now)
		if g.currentDay[workflow.ID] != day {
			g.currentDay[workflow.ID] = day
			g.dayCounts[workflow.ID] = 0
		}

		if g.dayCounts[workflow.ID] >= maxPerDay {
			return Decision{Reason: ReasonDailyCap}, nil
		}

		g.dayCounts[workflow.ID]++
	}

	if cooldown := workflow.Settings.CooldownMinutes; cooldown > 0 {
		g.cooldowns[workflow.ID] = now.Add(time.Duration(cooldown) * time.Minute)
	}

	return allow, nil
}
