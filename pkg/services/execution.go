package services

import (
	"context"
	"fmt"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

const defaultExecutionLimit = 50

// Execution exposes read and cancel access to execution history, scoped to
// the workflow's organization.
type Execution struct {
	persistence persistence.Persistence
}

// NewExecution creates a new execution history service.
func NewExecution(persistence persistence.Persistence) *Execution {
	return &Execution{
		persistence: persistence,
	}
}

// ListByWorkflow returns a workflow's most recent executions.
func (e *Execution) ListByWorkflow(ctx context.Context, orgID, workflowID string, limit int) ([]*models.Execution, error) {
	if _, err := e.ownedWorkflow(ctx, orgID, workflowID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	executions, err := e.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// FetchByID returns one execution.
func (e *Execution) FetchByID(ctx context.Context, orgID, executionID string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if _, err := e.ownedWorkflow(ctx, orgID, execution.WorkflowID); err != nil {
		return nil, persistence.NewExecutionError("FetchByID", executionID, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

// Cancel stops a running or waiting execution. A parked delay that is
// cancelled never resumes.
func (e *Execution) Cancel(ctx context.Context, orgID, executionID string) error {
	if _, err := e.FetchByID(ctx, orgID, executionID); err != nil {
		return err
	}

	return e.persistence.ExecutionRepository().Cancel(ctx, executionID)
}

func (e *Execution) ownedWorkflow(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.OrgID != orgID {
		return nil, persistence.NewWorkflowError("ownedWorkflow", workflowID, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}
