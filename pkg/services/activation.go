package services

import (
	"context"
	"fmt"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
	"github.com/robfig/cron/v3"
)

// Activation is the validation gate between the editable draft document
// and the executable workflow. A graph that passes activation is one the
// engine will never reject at dispatch time.
type Activation struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewActivation creates a new workflow activation service.
func NewActivation(persistence persistence.Persistence, registry *registry.Registry) *Activation {
	return &Activation{
		persistence: persistence,
		registry:    registry,
	}
}

// Activate validates the workflow document and flips its status to active.
// Works from draft and from paused.
func (a *Activation) Activate(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	workflow, err := a.fetch(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrWorkflowImmutable
	}

	if err := a.validateForActivation(workflow); err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusActive

	if err := a.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	return workflow, nil
}

// Pause takes an active workflow out of rotation without touching its
// document.
func (a *Activation) Pause(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	workflow, err := a.fetch(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, ErrWorkflowNotExecutable
	}

	workflow.Status = models.WorkflowStatusPaused

	if err := a.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to pause workflow: %w", err)
	}

	return workflow, nil
}

func (a *Activation) fetch(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	workflow, err := a.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.OrgID != orgID {
		return nil, persistence.NewWorkflowError("Activate", workflowID, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// validateForActivation ensures a workflow document is executable: a
// well-formed graph, resolvable action types with valid configs, and a
// parseable schedule when the trigger is a schedule.
func (a *Activation) validateForActivation(workflow *models.Workflow) error {
	if err := workflow.ValidateGraph(); err != nil {
		return NewValidationError("Activate", "INVALID_GRAPH", err.Error(), ErrInvalidGraph)
	}

	for _, node := range workflow.Nodes {
		if node.Type != models.NodeTypeAction {
			continue
		}

		action, err := node.ActionData()
		if err != nil {
			return NewValidationError("Activate", "INVALID_ACTION_CONFIG",
				fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidActionConfig)
		}

		if err := a.registry.ValidateActionConfig(action.ActionType, action.Config); err != nil {
			return NewValidationError("Activate", "INVALID_ACTION_CONFIG",
				fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidActionConfig)
		}
	}

	if workflow.TriggerType == models.TriggerTypeSchedule {
		expr, _ := workflow.TriggerConfig["cron"].(string)
		if expr == "" {
			return NewValidationError("Activate", "INVALID_CRON",
				"trigger_config.cron is required for schedule workflows", ErrInvalidCron)
		}

		if _, err := cron.ParseStandard(expr); err != nil {
			return NewValidationError("Activate", "INVALID_CRON",
				fmt.Sprintf("trigger_config.cron: %v", err), ErrInvalidCron)
		}
	}

	return nil
}
