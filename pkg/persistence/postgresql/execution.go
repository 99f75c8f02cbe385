package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

const executionColumns = `
	id
  , workflow_id
  , org_id
  , status
  , triggered_by
  , trigger_data
  , context
  , node_results
  , current_node_id
  , resume_at
  , frontier
  , started_at
  , completed_at
  , duration_seconds
  , error_message
`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save upserts the full execution document.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	triggerDataJSON, err := json.Marshal(orEmptyMap(execution.TriggerData))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	contextJSON, err := json.Marshal(orEmptyMap(execution.Context))
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	nodeResults := execution.NodeResults
	if nodeResults == nil {
		nodeResults = map[string]models.NodeResult{}
	}

	nodeResultsJSON, err := json.Marshal(nodeResults)
	if err != nil {
		return fmt.Errorf("failed to marshal node results: %w", err)
	}

	frontier := execution.Frontier
	if frontier == nil {
		frontier = []string{}
	}

	frontierJSON, err := json.Marshal(frontier)
	if err != nil {
		return fmt.Errorf("failed to marshal frontier: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, org_id, status, triggered_by, trigger_data,
			context, node_results, current_node_id, resume_at, frontier, started_at,
			completed_at, duration_seconds, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			context = EXCLUDED.context,
			node_results = EXCLUDED.node_results,
			current_node_id = EXCLUDED.current_node_id,
			resume_at = EXCLUDED.resume_at,
			frontier = EXCLUDED.frontier,
			completed_at = EXCLUDED.completed_at,
			duration_seconds = EXCLUDED.duration_seconds,
			error_message = EXCLUDED.error_message
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.OrgID,
		execution.Status,
		execution.TriggeredBy,
		triggerDataJSON,
		contextJSON,
		nodeResultsJSON,
		execution.CurrentNodeID,
		execution.ResumeAt,
		frontierJSON,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationSeconds,
		execution.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := fmt.Sprintf("SELECT %s FROM executions WHERE id = $1", executionColumns)

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, executionColumns)

	return r.queryExecutions(ctx, query, workflowID, limit)
}

// DueWaiting returns waiting executions whose resume_at has elapsed,
// oldest first.
func (r *ExecutionRepository) DueWaiting(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM executions
		WHERE status = 'waiting' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at
		LIMIT $2
	`, executionColumns)

	return r.queryExecutions(ctx, query, now.UTC(), limit)
}

// Cancel marks a non-terminal execution cancelled.
func (r *ExecutionRepository) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE executions
		SET status = 'cancelled', completed_at = NOW(), resume_at = NULL
		WHERE id = $1 AND status IN ('running', 'waiting')
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read cancel result: %w", err)
	}

	if rows == 0 {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if execution.IsTerminal() {
			return persistence.NewExecutionError("Cancel", id, persistence.ErrExecutionTerminal)
		}
	}

	return nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution       models.Execution
		triggerDataJSON []byte
		contextJSON     []byte
		nodeResultsJSON []byte
		frontierJSON    []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.OrgID,
		&execution.Status,
		&execution.TriggeredBy,
		&triggerDataJSON,
		&contextJSON,
		&nodeResultsJSON,
		&execution.CurrentNodeID,
		&execution.ResumeAt,
		&frontierJSON,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationSeconds,
		&execution.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerDataJSON, &execution.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if err := json.Unmarshal(nodeResultsJSON, &execution.NodeResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node results: %w", err)
	}

	if err := json.Unmarshal(frontierJSON, &execution.Frontier); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frontier: %w", err)
	}

	return &execution, nil
}
