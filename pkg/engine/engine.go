// Package engine executes workflow graphs breadth-first from the trigger
// node, suspending on delay nodes and resuming when they elapse.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
)

// Engine walks a workflow graph node by node. All graph state lives on the
// Execution record, so any worker can pick up a suspended execution.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(p persistence.Persistence, reg *registry.Registry, publisher eventbus.EventPublisher, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		persistence: p,
		registry:    reg,
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Start creates a new execution for the workflow and runs it until it
// completes, fails, or suspends on a delay node.
func (e *Engine) Start(ctx context.Context, workflowID, triggeredBy string, triggerData, execContext map[string]any) (*models.Execution, error) {
	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.IsExecutable() {
		return nil, fmt.Errorf("workflow %s is not executable (status %s)", workflowID, workflow.Status)
	}

	if err := workflow.ValidateGraph(); err != nil {
		return nil, fmt.Errorf("workflow %s has an invalid graph: %w", workflowID, err)
	}

	trigger, err := workflow.TriggerNode()
	if err != nil {
		return nil, err
	}

	executionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	now := e.now()

	if execContext == nil {
		execContext = make(map[string]any)
	}

	execution := &models.Execution{
		ID:          executionID.String(),
		WorkflowID:  workflow.ID,
		OrgID:       workflow.OrgID,
		Status:      models.ExecutionStatusRunning,
		TriggeredBy: triggeredBy,
		TriggerData: triggerData,
		Context:     execContext,
		NodeResults: make(map[string]models.NodeResult),
		StartedAt:   now,
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	if err := e.persistence.WorkflowRepository().RecordTriggered(ctx, workflow.ID, now); err != nil {
		e.logger.WarnContext(ctx, "Failed to record trigger on workflow",
			"workflow_id", workflow.ID, "error", err)
	}

	e.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
		TriggeredBy: triggeredBy,
	})

	e.logger.InfoContext(ctx, "Started execution",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"triggered_by", triggeredBy)

	execution.NodeResults[trigger.ID] = models.NodeResult{
		Status:     models.NodeResultSuccess,
		ExecutedAt: now,
	}

	if err := e.run(ctx, workflow, execution, targetsOf(workflow, trigger.ID, "")); err != nil {
		return execution, err
	}

	return execution, nil
}

// Resume continues a waiting execution once its delay has elapsed.
// Cancelled executions are a no-op; a missing workflow cancels the
// execution instead of failing it.
func (e *Engine) Resume(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusWaiting {
		e.logger.InfoContext(ctx, "Skipping resume of non-waiting execution",
			"execution_id", executionID, "status", execution.Status)

		return execution, nil
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			e.logger.WarnContext(ctx, "Workflow gone, cancelling waiting execution",
				"execution_id", executionID, "workflow_id", execution.WorkflowID)

			return execution, e.cancelOrphan(ctx, execution)
		}

		return nil, fmt.Errorf("failed to load workflow %s: %w", execution.WorkflowID, err)
	}

	delayNodeID := execution.CurrentNodeID

	execution.Status = models.ExecutionStatusRunning
	execution.NodeResults[delayNodeID] = models.NodeResult{
		Status:     models.NodeResultSuccess,
		Output:     map[string]any{"resumed_at": e.now().Format(time.RFC3339)},
		ExecutedAt: e.now(),
	}

	queue := append(targetsOf(workflow, delayNodeID, ""), execution.Frontier...)

	execution.CurrentNodeID = ""
	execution.ResumeAt = nil
	execution.Frontier = nil

	e.publish(ctx, workflow.ID, events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      delayNodeID,
	})

	e.logger.InfoContext(ctx, "Resumed execution",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"node_id", delayNodeID)

	if err := e.run(ctx, workflow, execution, queue); err != nil {
		return execution, err
	}

	return execution, nil
}

// run walks the frontier until it drains, a delay suspends, or a critical
// failure ends the execution. A visited node is never executed twice, so
// merging paths collapse.
func (e *Engine) run(ctx context.Context, workflow *models.Workflow, execution *models.Execution, queue []string) error {
	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		if _, visited := execution.NodeResults[nodeID]; visited {
			continue
		}

		node := workflow.NodeByID(nodeID)
		if node == nil {
			return e.fail(ctx, workflow, execution, nodeID, fmt.Errorf("node %s not found in workflow", nodeID))
		}

		switch node.Type {
		case models.NodeTypeTrigger:
			execution.NodeResults[node.ID] = models.NodeResult{
				Status:     models.NodeResultSuccess,
				ExecutedAt: e.now(),
			}
			queue = append(queue, targetsOf(workflow, node.ID, "")...)

		case models.NodeTypeCondition:
			next, err := e.runCondition(workflow, execution, node)
			if err != nil {
				return e.fail(ctx, workflow, execution, node.ID, err)
			}

			queue = append(queue, next...)

		case models.NodeTypeBranch:
			next, err := e.runBranch(workflow, execution, node)
			if err != nil {
				return e.fail(ctx, workflow, execution, node.ID, err)
			}

			queue = append(queue, next...)

		case models.NodeTypeDelay:
			return e.suspend(ctx, workflow, execution, node, queue)

		case models.NodeTypeAction:
			next, failedCritical, err := e.runAction(ctx, workflow, execution, node)
			if err != nil {
				return e.fail(ctx, workflow, execution, node.ID, err)
			}

			if failedCritical {
				return e.fail(ctx, workflow, execution, node.ID,
					fmt.Errorf("critical action failed: %s", execution.NodeResults[node.ID].Error))
			}

			queue = append(queue, next...)

		default:
			return e.fail(ctx, workflow, execution, node.ID, fmt.Errorf("unknown node type %q", node.Type))
		}
	}

	return e.complete(ctx, workflow, execution)
}

// runCondition evaluates the node against the accumulated context. A false
// outcome records the node as skipped and prunes its path, leaving sibling
// paths untouched.
func (e *Engine) runCondition(workflow *models.Workflow, execution *models.Execution, node *models.Node) ([]string, error) {
	data, err := node.ConditionData()
	if err != nil {
		return nil, err
	}

	passed := models.EvaluateAll(data.Conditions, data.Logic, evaluationContext(execution))

	if !passed {
		execution.NodeResults[node.ID] = models.NodeResult{
			Status:     models.NodeResultSkipped,
			Output:     map[string]any{"passed": false},
			ExecutedAt: e.now(),
		}

		return nil, nil
	}

	execution.NodeResults[node.ID] = models.NodeResult{
		Status:     models.NodeResultSuccess,
		Output:     map[string]any{"passed": true},
		ExecutedAt: e.now(),
	}

	return targetsOf(workflow, node.ID, ""), nil
}

// runBranch picks exactly one branch: the first whose conditions pass, in
// declaration order, else the default. Only edges whose sourceHandle names
// the chosen branch are followed.
func (e *Engine) runBranch(workflow *models.Workflow, execution *models.Execution, node *models.Node) ([]string, error) {
	data, err := node.BranchData()
	if err != nil {
		return nil, err
	}

	evalCtx := evaluationContext(execution)

	var chosen *models.Branch

	for i := range data.Branches {
		branch := &data.Branches[i]
		if branch.IsDefault {
			continue
		}

		if models.EvaluateAll(branch.Conditions, branch.Logic, evalCtx) {
			chosen = branch

			break
		}
	}

	if chosen == nil {
		for i := range data.Branches {
			if data.Branches[i].IsDefault {
				chosen = &data.Branches[i]

				break
			}
		}
	}

	if chosen == nil {
		execution.NodeResults[node.ID] = models.NodeResult{
			Status:     models.NodeResultSkipped,
			Output:     map[string]any{"branch_id": nil},
			ExecutedAt: e.now(),
		}

		return nil, nil
	}

	execution.NodeResults[node.ID] = models.NodeResult{
		Status:     models.NodeResultSuccess,
		Output:     map[string]any{"branch_id": chosen.ID, "branch_name": chosen.Name},
		ExecutedAt: e.now(),
	}

	return targetsOf(workflow, node.ID, chosen.ID), nil
}

// runAction executes the node's configured action. A failed action is
// recorded and the path continues unless the node is marked critical.
func (e *Engine) runAction(ctx context.Context, workflow *models.Workflow, execution *models.Execution, node *models.Node) (next []string, failedCritical bool, err error) {
	data, err := node.ActionData()
	if err != nil {
		return nil, false, err
	}

	action, err := e.registry.CreateAction(data.ActionType, data.Config)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create action %s: %w", data.ActionType, err)
	}

	logger := e.logger.With(
		"execution_id", execution.ID,
		"node_id", node.ID,
		"action_type", data.ActionType,
	)

	output, actionErr := action.Execute(ctx, models.ContextOf(execution), logger)
	if actionErr != nil {
		execution.NodeResults[node.ID] = models.NodeResult{
			Status:     models.NodeResultFailed,
			Output:     output,
			Error:      actionErr.Error(),
			ExecutedAt: e.now(),
		}

		if data.Critical {
			return nil, true, nil
		}

		logger.WarnContext(ctx, "Action failed, continuing execution", "error", actionErr)

		return targetsOf(workflow, node.ID, ""), false, nil
	}

	execution.NodeResults[node.ID] = models.NodeResult{
		Status:     models.NodeResultSuccess,
		Output:     output,
		ExecutedAt: e.now(),
	}

	return targetsOf(workflow, node.ID, ""), false, nil
}

// suspend parks the execution on a delay node. The remaining frontier is
// persisted so a different worker can finish the walk after the delay.
func (e *Engine) suspend(ctx context.Context, workflow *models.Workflow, execution *models.Execution, node *models.Node, queue []string) error {
	data, err := node.DelayData()
	if err != nil {
		return e.fail(ctx, workflow, execution, node.ID, err)
	}

	duration, err := delayDuration(data)
	if err != nil {
		return e.fail(ctx, workflow, execution, node.ID, err)
	}

	resumeAt := e.now().Add(duration)

	execution.Status = models.ExecutionStatusWaiting
	execution.CurrentNodeID = node.ID
	execution.ResumeAt = &resumeAt
	execution.Frontier = queue

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save waiting execution: %w", err)
	}

	e.publish(ctx, workflow.ID, events.ExecutionWaiting{
		BaseEvent:   events.NewBaseEvent(events.ExecutionWaitingEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		ResumeAt:    resumeAt,
	})

	e.logger.InfoContext(ctx, "Execution waiting on delay",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"resume_at", resumeAt)

	return nil
}

func (e *Engine) complete(ctx context.Context, workflow *models.Workflow, execution *models.Execution) error {
	now := e.now()

	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.DurationSeconds = now.Sub(execution.StartedAt).Seconds()

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save completed execution: %w", err)
	}

	e.publish(ctx, workflow.ID, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, workflow.ID),
		ExecutionID:   execution.ID,
		DurationSecs:  execution.DurationSeconds,
		NodesExecuted: len(execution.NodeResults),
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"nodes_executed", len(execution.NodeResults),
		"duration_seconds", execution.DurationSeconds)

	return nil
}

func (e *Engine) fail(ctx context.Context, workflow *models.Workflow, execution *models.Execution, nodeID string, cause error) error {
	now := e.now()

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.DurationSeconds = now.Sub(execution.StartedAt).Seconds()
	execution.ErrorMessage = cause.Error()

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save failed execution: %w", err)
	}

	e.publish(ctx, workflow.ID, events.ExecutionFailed{
		BaseEvent:    events.NewBaseEvent(events.ExecutionFailedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		NodeID:       nodeID,
		Error:        cause.Error(),
		DurationSecs: execution.DurationSeconds,
	})

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"node_id", nodeID,
		"error", cause)

	return nil
}

func (e *Engine) cancelOrphan(ctx context.Context, execution *models.Execution) error {
	if err := e.persistence.ExecutionRepository().Cancel(ctx, execution.ID); err != nil {
		return err
	}

	e.publish(ctx, execution.WorkflowID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Reason:      "workflow no longer exists",
	})

	return nil
}

func (e *Engine) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, workflowID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "workflow_id", workflowID, "error", err)
	}
}

// targetsOf returns the targets of a node's outgoing edges. For branch
// nodes, handle restricts traversal to the chosen branch's edges.
func targetsOf(workflow *models.Workflow, nodeID, handle string) []string {
	var targets []string

	for _, edge := range workflow.OutgoingEdges(nodeID) {
		if handle != "" && edge.SourceHandle != handle {
			continue
		}

		targets = append(targets, edge.Target)
	}

	return targets
}

// evaluationContext is the map conditions and branches evaluate against:
// trigger data fields at the top level, plus the nested views nodes address
// by path.
func evaluationContext(execution *models.Execution) map[string]any {
	evalCtx := make(map[string]any, len(execution.TriggerData)+3)

	for key, value := range execution.TriggerData {
		evalCtx[key] = value
	}

	outputs := make(map[string]any, len(execution.NodeResults))
	for nodeID, result := range execution.NodeResults {
		outputs[nodeID] = result.Output
	}

	evalCtx["trigger_data"] = execution.TriggerData
	evalCtx["context"] = execution.Context
	evalCtx["node_results"] = outputs

	return evalCtx
}

func delayDuration(data *models.DelayData) (time.Duration, error) {
	if data.Duration <= 0 {
		return 0, fmt.Errorf("delay duration must be positive, got %v", data.Duration)
	}

	var unit time.Duration

	switch data.Unit {
	case "seconds":
		unit = time.Second
	case "minutes", "":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown delay unit %q", data.Unit)
	}

	return time.Duration(data.Duration * float64(unit)), nil
}
