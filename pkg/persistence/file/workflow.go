package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

// WorkflowRepository stores each workflow as workflows/<id>.json. A single
// process lock serializes read-modify-write operations.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

// List returns paginated and filtered workflows with in-memory operations.
func (wr *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	allWorkflows, err := wr.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Workflow, 0, len(allWorkflows))

	for _, workflow := range allWorkflows {
		if opts.OrgID != "" && workflow.OrgID != opts.OrgID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		if opts.TriggerType != "" && workflow.TriggerType != opts.TriggerType {
			continue
		}

		filtered = append(filtered, workflow)
	}

	wr.sortWorkflows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	startIdx := opts.Offset
	if startIdx >= len(filtered) {
		return &persistence.WorkflowListResult{
			Workflows:   make([]*models.Workflow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	endIdx := opts.Offset + opts.Limit
	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.WorkflowListResult{
		Workflows:   filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

// ListActiveByTrigger returns the matcher's candidate set for one event.
func (wr *WorkflowRepository) ListActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*models.Workflow, error) {
	allWorkflows, err := wr.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []*models.Workflow

	for _, workflow := range allWorkflows {
		if workflow.OrgID != orgID || workflow.TriggerType != triggerType {
			continue
		}

		if !workflow.IsExecutable() {
			continue
		}

		candidates = append(candidates, workflow)
	}

	return candidates, nil
}

// ListScheduled returns active schedule workflows across all organizations.
func (wr *WorkflowRepository) ListScheduled(ctx context.Context) ([]*models.Workflow, error) {
	allWorkflows, err := wr.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var scheduled []*models.Workflow

	for _, workflow := range allWorkflows {
		if workflow.TriggerType == models.TriggerTypeSchedule && workflow.IsExecutable() {
			scheduled = append(scheduled, workflow)
		}
	}

	return scheduled, nil
}

func (wr *WorkflowRepository) loadAll(ctx context.Context) ([]*models.Workflow, error) {
	dir := path.Join(wr.root, "workflows")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-5]

		workflow, err := wr.GetByID(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (wr *WorkflowRepository) sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	sort.Slice(workflows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = workflows[i].UpdatedAt.Before(workflows[j].UpdatedAt)
		case "name":
			less = workflows[i].Name < workflows[j].Name
		default:
			less = workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	filePath := filepath.Clean(path.Join(wr.root, "workflows", workflowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	return &workflow, nil
}

// Save writes the full workflow document.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.save(ctx, workflow)
}

func (wr *WorkflowRepository) save(_ context.Context, workflow *models.Workflow) error {
	err := os.MkdirAll(path.Join(wr.root, "workflows"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	filePath := path.Join(wr.root, "workflows", workflow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// SaveGraph replaces nodes and edges only, the autosave write path.
func (wr *WorkflowRepository) SaveGraph(ctx context.Context, id string, nodes []*models.Node, edges []*models.Edge) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.ArchivedAt != nil {
		return persistence.NewWorkflowError("SaveGraph", id, persistence.ErrWorkflowArchived)
	}

	workflow.Nodes = nodes
	workflow.Edges = edges

	return wr.save(ctx, workflow)
}

// Archive soft-deletes the workflow. Already-archived workflows are left
// untouched.
func (wr *WorkflowRepository) Archive(ctx context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.ArchivedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	workflow.ArchivedAt = &now
	workflow.Status = models.WorkflowStatusArchived

	return wr.save(ctx, workflow)
}

// RecordTriggered bumps execution_count and last_triggered_at.
func (wr *WorkflowRepository) RecordTriggered(ctx context.Context, id string, at time.Time) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	workflow.ExecutionCount++
	triggeredAt := at.UTC()
	workflow.LastTriggeredAt = &triggeredAt

	return wr.save(ctx, workflow)
}
