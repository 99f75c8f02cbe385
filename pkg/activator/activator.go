// Package activator consumes inbound domain events, matches them against
// workflow trigger configurations, applies dispatch guards, and publishes
// a dispatch event for every workflow that should run.
package activator

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/guard"
	"github.com/pulsehq/pulse-workflows/pkg/metrics"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/trigger"
)

// Activator is the trigger-side pipeline: event in, zero or more
// WorkflowTriggered events out. Matching is pure; the guard is the only
// stateful step, so replaying an already-dispatched event is suppressed by
// the cooldown rather than duplicated.
type Activator struct {
	persistence persistence.Persistence
	matcher     *trigger.Matcher
	guard       guard.Guard
	publisher   eventbus.EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Activator.
type Option func(*Activator)

// WithClock overrides the activator's time source.
func WithClock(now func() time.Time) Option {
	return func(a *Activator) {
		a.now = now
	}
}

func NewActivator(p persistence.Persistence, g guard.Guard, publisher eventbus.EventPublisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Activator {
	activator := &Activator{
		persistence: p,
		matcher:     trigger.NewMatcher(logger),
		guard:       g,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.With("module", "activator"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(activator)
	}

	return activator
}

// HandleTriggerEvent processes one inbound event end to end. Suppressed and
// failed dispatches are logged and counted; they never fail the event, so
// one noisy workflow cannot block its siblings.
func (a *Activator) HandleTriggerEvent(ctx context.Context, event *events.TriggerEvent) error {
	if err := event.Validate(); err != nil {
		a.logger.WarnContext(ctx, "Dropping invalid trigger event", "event_id", event.ID, "error", err)

		return nil
	}

	a.metrics.TriggerEvents.WithLabelValues(event.EventType).Inc()

	candidates, err := a.persistence.WorkflowRepository().ListActiveByTrigger(ctx, event.OrgID, event.EventType)
	if err != nil {
		return err
	}

	matches := a.matcher.MatchWorkflows(event, candidates)
	if len(matches) == 0 {
		return nil
	}

	for _, match := range matches {
		a.metrics.WorkflowsMatched.Inc()
		a.dispatch(ctx, event, match)
	}

	return nil
}

func (a *Activator) dispatch(ctx context.Context, event *events.TriggerEvent, match trigger.Match) {
	workflow := match.Workflow
	logger := a.logger.With("workflow_id", workflow.ID, "event_id", event.ID)

	decision, err := a.guard.Allow(ctx, workflow, a.now())
	if err != nil {
		logger.ErrorContext(ctx, "Guard check failed, suppressing dispatch", "error", err)

		return
	}

	if !decision.Allowed {
		a.metrics.DispatchSuppressed.WithLabelValues(decision.Reason).Inc()
		logger.InfoContext(ctx, "Dispatch suppressed", "reason", decision.Reason)

		return
	}

	depth := 0
	if raw, ok := event.Payload["trigger_depth"]; ok {
		if n, isFloat := raw.(float64); isFloat {
			depth = int(n)
		} else if n, isInt := raw.(int); isInt {
			depth = n
		}
	}

	dispatchEvent := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, workflow.ID),
		OrgID:       workflow.OrgID,
		TriggeredBy: event.EventType,
		TriggerData: match.TriggerData,
		Depth:       depth,
	}

	if err := a.publisher.Publish(ctx, workflow.ID, dispatchEvent); err != nil {
		logger.ErrorContext(ctx, "Failed to publish dispatch event", "error", err)

		return
	}

	logger.InfoContext(ctx, "Dispatched workflow", "triggered_by", event.EventType)
}
