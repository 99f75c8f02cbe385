package services

import (
	"context"
	"fmt"

	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

// Firing publishes fire-now requests onto the trigger event stream. The
// event rides the same path as any other domain event, so the cooldown and
// daily-cap guard applies to manual fires too.
type Firing struct {
	persistence persistence.Persistence
	triggerBus  eventbus.TriggerEventBus
}

// NewFiring creates a new fire-now service.
func NewFiring(persistence persistence.Persistence, triggerBus eventbus.TriggerEventBus) *Firing {
	return &Firing{
		persistence: persistence,
		triggerBus:  triggerBus,
	}
}

// FireNow publishes a trigger event targeted at one workflow. The event
// type mirrors the workflow's own trigger type and the payload carries the
// workflow id, so trigger matching narrows to exactly this workflow. A
// sample payload lets config filters evaluate against realistic data.
func (f *Firing) FireNow(ctx context.Context, orgID, workflowID string, payload map[string]any) (*events.TriggerEvent, error) {
	workflow, err := f.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.OrgID != orgID {
		return nil, persistence.NewWorkflowError("FireNow", workflowID, persistence.ErrWorkflowNotFound)
	}

	if !workflow.IsExecutable() {
		return nil, ErrWorkflowNotExecutable
	}

	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}

	merged["workflow_id"] = workflowID

	event := events.NewTriggerEvent(workflow.TriggerType, orgID, merged)
	event.Source = "api"

	if err := f.triggerBus.PublishTriggerEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish fire-now event: %w", err)
	}

	return event, nil
}
