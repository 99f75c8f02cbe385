package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

const workflowColumns = `
	id
  , org_id
  , name
  , status
  , mode
  , trigger_type
  , trigger_config
  , nodes
  , edges
  , settings
  , execution_count
  , last_triggered_at
  , created_at
  , updated_at
  , archived_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	orderBy, err := orderClause(opts.SortBy, opts.SortOrder)
	if err != nil {
		return nil, err
	}

	where := "WHERE org_id = $1"
	args := []any{opts.OrgID}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.TriggerType != "" {
		args = append(args, opts.TriggerType)
		where += fmt.Sprintf(" AND trigger_type = $%d", len(args))
	}

	var totalCount int64

	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf("SELECT %s FROM workflows %s %s LIMIT $%d OFFSET $%d",
		workflowColumns, where, orderBy, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*models.Workflow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflows
		WHERE org_id = $1 AND trigger_type = $2 AND status = 'active' AND archived_at IS NULL
		ORDER BY created_at
	`, workflowColumns)

	rows, err := r.db.QueryContext(ctx, query, orgID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// ListScheduled returns active schedule workflows across all organizations.
func (r *WorkflowRepository) ListScheduled(ctx context.Context) ([]*models.Workflow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflows
		WHERE trigger_type = $1 AND status = 'active' AND archived_at IS NULL
		ORDER BY created_at
	`, workflowColumns)

	rows, err := r.db.QueryContext(ctx, query, models.TriggerTypeSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := fmt.Sprintf("SELECT %s FROM workflows WHERE id = $1", workflowColumns)

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts the full workflow document.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	triggerConfigJSON, err := json.Marshal(orEmptyMap(workflow.TriggerConfig))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	nodesJSON, err := json.Marshal(orEmptyNodes(workflow.Nodes))
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(orEmptyEdges(workflow.Edges))
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	settingsJSON, err := json.Marshal(workflow.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO workflows (id, org_id, name, status, mode, trigger_type, trigger_config,
			nodes, edges, settings, execution_count, last_triggered_at, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			mode = EXCLUDED.mode,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.OrgID,
		workflow.Name,
		workflow.Status,
		workflow.Mode,
		workflow.TriggerType,
		triggerConfigJSON,
		nodesJSON,
		edgesJSON,
		settingsJSON,
		workflow.ExecutionCount,
		workflow.LastTriggeredAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// SaveGraph replaces nodes and edges in place without touching the rest of
// the document.
func (r *WorkflowRepository) SaveGraph(ctx context.Context, id string, nodes []*models.Node, edges []*models.Edge) error {
	nodesJSON, err := json.Marshal(orEmptyNodes(nodes))
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(orEmptyEdges(edges))
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		UPDATE workflows
		SET nodes = $2, edges = $3, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("failed to save workflow graph: %w", err)
	}

	return r.requireRow(ctx, result, "SaveGraph", id)
}

// Archive soft-deletes the workflow.
func (r *WorkflowRepository) Archive(ctx context.Context, id string) error {
	query := `
		UPDATE workflows
		SET archived_at = NOW(), status = 'archived', updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read archive result: %w", err)
	}

	if rows == 0 {
		// Already archived or missing. Only the latter is an error.
		_, err := r.GetByID(ctx, id)

		return err
	}

	return nil
}

// RecordTriggered bumps execution_count and last_triggered_at in one
// statement so concurrent activators never lose an increment.
func (r *WorkflowRepository) RecordTriggered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE workflows
		SET execution_count = execution_count + 1, last_triggered_at = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}

	return r.requireRow(ctx, result, "RecordTriggered", id)
}

func (r *WorkflowRepository) requireRow(_ context.Context, result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read %s result: %w", op, err)
	}

	if rows == 0 {
		return persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow          models.Workflow
		triggerConfigJSON []byte
		nodesJSON         []byte
		edgesJSON         []byte
		settingsJSON      []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.OrgID,
		&workflow.Name,
		&workflow.Status,
		&workflow.Mode,
		&workflow.TriggerType,
		&triggerConfigJSON,
		&nodesJSON,
		&edgesJSON,
		&settingsJSON,
		&workflow.ExecutionCount,
		&workflow.LastTriggeredAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := json.Unmarshal(settingsJSON, &workflow.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &workflow, nil
}

func orderClause(sortBy, sortOrder string) (string, error) {
	if sortBy == "" {
		sortBy = "created_at"
	}

	switch sortBy {
	case "created_at", "updated_at", "name":
	default:
		return "", fmt.Errorf("invalid sort field: %s", sortBy)
	}

	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}

	return fmt.Sprintf("ORDER BY %s %s", sortBy, direction), nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

func orEmptyNodes(nodes []*models.Node) []*models.Node {
	if nodes == nil {
		return []*models.Node{}
	}

	return nodes
}

func orEmptyEdges(edges []*models.Edge) []*models.Edge {
	if edges == nil {
		return []*models.Edge{}
	}

	return edges
}
