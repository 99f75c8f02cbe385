package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows. OrgID is
// mandatory: every read is scoped to one organization.
type ListWorkflowsRequest struct {
	// Tenancy
	OrgID string

	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Status      *models.WorkflowStatus
	TriggerType string

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves one organization's workflows with filtering,
// sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListWorkflowsOptions{
		OrgID:       req.OrgID,
		Limit:       req.Limit,
		Offset:      req.Offset,
		Status:      req.Status,
		TriggerType: req.TriggerType,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
	}

	result, err := w.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.OrgID == "" {
		return ErrEmptyOrgID
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusActive,
			models.WorkflowStatusPaused,
			models.WorkflowStatusArchived,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID, scoped to the organization.
func (w *Workflow) FetchByID(ctx context.Context, orgID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.OrgID != orgID {
		return nil, persistence.NewWorkflowError("FetchByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

// Create adds a new workflow to the repository. New workflows start in
// draft with an empty graph; the canvas fills it in through SaveGraph.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	now := time.Now().UTC()
	workflow.ID = uuid.Must(uuid.NewV7()).String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.Status = models.WorkflowStatusDraft

	if workflow.Mode == "" {
		workflow.Mode = models.WorkflowModeAdvanced
	}

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// SaveGraph replaces a workflow's node and edge document. Drafts may be
// incomplete or invalid mid-edit, so no graph validation happens here.
// Activation is the validation gate.
func (w *Workflow) SaveGraph(ctx context.Context, orgID, id string, nodes []*models.Node, edges []*models.Edge) error {
	if _, err := w.FetchByID(ctx, orgID, id); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().SaveGraph(ctx, id, nodes, edges)
	if err != nil {
		if persistence.IsWorkflowArchived(err) {
			return ErrWorkflowImmutable
		}

		return fmt.Errorf("failed to save workflow graph: %w", err)
	}

	return nil
}

// Archive soft-deletes a workflow. Execution history stays readable.
func (w *Workflow) Archive(ctx context.Context, orgID, id string) error {
	if _, err := w.FetchByID(ctx, orgID, id); err != nil {
		return err
	}

	return w.persistence.WorkflowRepository().Archive(ctx, id)
}
