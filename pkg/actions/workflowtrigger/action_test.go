package workflowtrigger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

type recordingDispatcher struct {
	workflowID string
	depth      int
	calls      int
}

func (d *recordingDispatcher) DispatchWorkflow(_ context.Context, workflowID, _ string, _ map[string]any, depth int) error {
	d.workflowID = workflowID
	d.depth = depth
	d.calls++

	return nil
}

func TestAction_Execute_IncrementsDepth(t *testing.T) {
	dispatcher := &recordingDispatcher{}

	action, err := NewAction(dispatcher, map[string]any{"workflow_id": "wf-2"})
	if err != nil {
		t.Fatalf("Failed to create action: %v", err)
	}

	executionCtx := models.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		OrgID:       "org-1",
		Context:     map[string]any{DepthKey: float64(1)},
	}

	output, err := action.Execute(context.Background(), executionCtx, slog.Default())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if dispatcher.workflowID != "wf-2" || dispatcher.depth != 2 {
		t.Errorf("Expected dispatch of wf-2 at depth 2, got %s depth %d", dispatcher.workflowID, dispatcher.depth)
	}

	if output["depth"] != 2 {
		t.Errorf("Expected output depth 2, got %v", output["depth"])
	}
}

func TestAction_Execute_MaxDepth(t *testing.T) {
	dispatcher := &recordingDispatcher{}

	action, err := NewAction(dispatcher, map[string]any{"workflow_id": "wf-2"})
	if err != nil {
		t.Fatalf("Failed to create action: %v", err)
	}

	executionCtx := models.ExecutionContext{
		Context: map[string]any{DepthKey: float64(MaxDepth)},
	}

	_, err = action.Execute(context.Background(), executionCtx, slog.Default())
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("Expected ErrMaxDepthExceeded, got %v", err)
	}

	if dispatcher.calls != 0 {
		t.Error("Expected no dispatch beyond max depth")
	}
}
