// Package workflowtrigger provides the trigger_workflow action handler.
package workflowtrigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
)

const ActionTypeTriggerWorkflow = "trigger_workflow"

// DepthKey is the execution context key carrying the recursion depth of
// workflow-triggered-workflow chains.
const DepthKey = "trigger_depth"

// MaxDepth bounds workflow→workflow recursion so A→B→A chains terminate.
const MaxDepth = 3

var ErrMaxDepthExceeded = errors.New("trigger_workflow recursion depth exceeded")

// Action dispatches another workflow, carrying the current execution's
// context as that workflow's trigger data.
type Action struct {
	dispatcher protocol.WorkflowDispatcher
	workflowID string
}

func NewAction(dispatcher protocol.WorkflowDispatcher, config map[string]any) (*Action, error) {
	workflowID, ok := config["workflow_id"].(string)
	if !ok || workflowID == "" {
		return nil, errors.New("missing required field 'workflow_id'")
	}

	return &Action{dispatcher: dispatcher, workflowID: workflowID}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	depth := 0
	if raw, ok := executionCtx.Context[DepthKey]; ok {
		if n, ok := models.ToNumber(raw); ok {
			depth = int(n)
		}
	}

	if depth >= MaxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrMaxDepthExceeded, depth)
	}

	logger.Info("Triggering workflow", "target_workflow_id", a.workflowID, "depth", depth+1)

	triggerData := map[string]any{
		"source_execution_id": executionCtx.ExecutionID,
		"source_workflow_id":  executionCtx.WorkflowID,
	}
	for key, value := range executionCtx.Context {
		triggerData[key] = value
	}

	err := a.dispatcher.DispatchWorkflow(ctx, a.workflowID, executionCtx.OrgID, triggerData, depth+1)
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch workflow %s: %w", a.workflowID, err)
	}

	return map[string]any{
		"workflow_id": a.workflowID,
		"depth":       depth + 1,
	}, nil
}

type factory struct {
	dispatcher protocol.WorkflowDispatcher
}

func (f *factory) ID() string   { return ActionTypeTriggerWorkflow }
func (f *factory) Name() string { return "Trigger Workflow" }

func (f *factory) Description() string {
	return "Fires another workflow with the current execution context as trigger data."
}

func (f *factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.dispatcher, config)
}

func (f *factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string", "description": "Id of the workflow to fire."},
		},
		"required": []string{"workflow_id"},
	}
}

// NewFactory creates the trigger_workflow action factory.
func NewFactory(dispatcher protocol.WorkflowDispatcher) protocol.ActionFactory {
	return &factory{dispatcher: dispatcher}
}
