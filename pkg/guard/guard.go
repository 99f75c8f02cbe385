// Package guard gates workflow dispatch behind per-workflow rate policy.
package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// Suppression reasons reported in Decision.Reason.
const (
	ReasonCooldown    = "cooldown_active"
	ReasonDailyCap    = "daily_cap_reached"
	ReasonActiveHours = "outside_active_hours"
)

// Decision is the outcome of a guard check. A suppressed dispatch carries
// the reason so the activator can log and count it.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

// Guard decides whether a matched workflow may be dispatched right now.
// Allow both checks and claims: a true decision consumes a cooldown slot
// and a daily-cap slot, so callers must dispatch after a positive answer.
type Guard interface {
	Allow(ctx context.Context, workflow *models.Workflow, now time.Time) (Decision, error)
}

// workflowLocation resolves the workflow's settings timezone, falling back
// to UTC when unset or unknown.
func workflowLocation(workflow *models.Workflow) *time.Location {
	if tz := workflow.Settings.Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}

	return time.UTC
}

// dayKey is the calendar day in the workflow's timezone, used to scope the
// daily execution counter.
func dayKey(workflow *models.Workflow, now time.Time) string {
	return now.In(workflowLocation(workflow)).Format("2006-01-02")
}

// withinActiveHours checks the workflow's "HH:MM-HH:MM" windows in its own
// timezone. No windows means always active; a malformed window is skipped.
func withinActiveHours(workflow *models.Workflow, now time.Time) bool {
	windows := workflow.Settings.ActiveHours
	if len(windows) == 0 {
		return true
	}

	local := now.In(workflowLocation(workflow))
	minutes := local.Hour()*60 + local.Minute()

	for _, window := range windows {
		start, end, ok := parseWindow(window)
		if !ok {
			continue
		}

		if start <= minutes && minutes < end {
			return true
		}
	}

	return false
}

func parseWindow(window string) (start, end int, ok bool) {
	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, ok = parseClock(parts[0])
	if !ok {
		return 0, 0, false
	}

	end, ok = parseClock(parts[1])
	if !ok || end <= start {
		return 0, 0, false
	}

	return start, end, true
}

func parseClock(value string) (int, bool) {
	var hour, minute int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d", &hour, &minute); err != nil {
		return 0, false
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}

	return hour*60 + minute, true
}
