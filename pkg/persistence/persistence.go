// Package persistence provides the storage abstraction for workflows and
// executions.
package persistence

import (
	"context"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and paginates workflow listings. OrgID is
// mandatory for tenant isolation.
type ListWorkflowsOptions struct {
	OrgID       string
	Status      *models.WorkflowStatus
	TriggerType string
	Limit       int
	Offset      int
	SortBy      string
	SortOrder   string
}

type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)

	// ListActiveByTrigger returns the active, unarchived workflows of one
	// organization whose trigger_type matches. This is the matcher's
	// candidate set.
	ListActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*models.Workflow, error)

	// ListScheduled returns every active schedule-triggered workflow across
	// organizations. The scheduler reconciles its cron entries from this.
	ListScheduled(ctx context.Context) ([]*models.Workflow, error)

	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error

	// SaveGraph replaces only the nodes and edges of a workflow, leaving
	// name, settings and trigger config untouched. This is the autosave
	// write path.
	SaveGraph(ctx context.Context, id string, nodes []*models.Node, edges []*models.Edge) error

	// Archive soft-deletes. Archived workflows stay readable while
	// executions reference them.
	Archive(ctx context.Context, id string) error

	// RecordTriggered bumps execution_count and last_triggered_at in one
	// atomic step.
	RecordTriggered(ctx context.Context, id string, at time.Time) error
}

type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)

	// DueWaiting returns waiting executions whose resume_at has elapsed,
	// oldest first. The scheduler polls this.
	DueWaiting(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	Cancel(ctx context.Context, id string) error
}
