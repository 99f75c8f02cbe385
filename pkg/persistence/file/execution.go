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

// ExecutionRepository stores each execution as executions/<id>.json.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.save(ctx, execution)
}

func (er *ExecutionRepository) save(_ context.Context, execution *models.Execution) error {
	err := os.MkdirAll(path.Join(er.root, "executions"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	filePath := path.Join(er.root, "executions", execution.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

func (er *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.Execution, error) {
	filePath := filepath.Clean(path.Join(er.root, "executions", executionID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	var execution models.Execution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	executions, err := er.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Execution, 0)

	for _, execution := range executions {
		if execution.WorkflowID == workflowID {
			matching = append(matching, execution)
		}
	}

	// Newest first.
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].StartedAt.After(matching[j].StartedAt)
	})

	if len(matching) > limit {
		matching = matching[:limit]
	}

	return matching, nil
}

// DueWaiting returns waiting executions whose resume time has elapsed,
// oldest first.
func (er *ExecutionRepository) DueWaiting(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	executions, err := er.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var due []*models.Execution

	for _, execution := range executions {
		if execution.Status != models.ExecutionStatusWaiting {
			continue
		}

		if execution.ResumeAt == nil || execution.ResumeAt.After(now) {
			continue
		}

		due = append(due, execution)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// Cancel marks a non-terminal execution cancelled. Cancelling a terminal
// execution fails with ErrExecutionTerminal.
func (er *ExecutionRepository) Cancel(ctx context.Context, executionID string) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.IsTerminal() {
		return persistence.NewExecutionError("Cancel", executionID, persistence.ErrExecutionTerminal)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = &now
	execution.ResumeAt = nil

	return er.save(ctx, execution)
}

func (er *ExecutionRepository) loadAll(ctx context.Context) ([]*models.Execution, error) {
	dir := path.Join(er.root, "executions")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		executionID := file[:len(file)-5]

		execution, err := er.GetByID(ctx, executionID)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
		}

		executions = append(executions, execution)
	}

	return executions, nil
}
