package models

import (
	"errors"
	"testing"
)

func graphWorkflow(nodes []*Node, edges []*Edge) *Workflow {
	return &Workflow{
		ID:          "wf-1",
		OrgID:       "org-1",
		Name:        "escalation",
		Status:      WorkflowStatusActive,
		TriggerType: TriggerTypeSurveyResponse,
		Nodes:       nodes,
		Edges:       edges,
	}
}

func TestValidateGraph_SingleTriggerRequired(t *testing.T) {
	wf := graphWorkflow([]*Node{
		{ID: "a", Type: NodeTypeAction},
	}, nil)

	if err := wf.ValidateGraph(); !errors.Is(err, ErrNoTriggerNode) {
		t.Errorf("Expected ErrNoTriggerNode, got %v", err)
	}

	wf = graphWorkflow([]*Node{
		{ID: "t1", Type: NodeTypeTrigger},
		{ID: "t2", Type: NodeTypeTrigger},
	}, nil)

	if err := wf.ValidateGraph(); !errors.Is(err, ErrMultipleTriggerNodes) {
		t.Errorf("Expected ErrMultipleTriggerNodes, got %v", err)
	}
}

func TestValidateGraph_Reachability(t *testing.T) {
	wf := graphWorkflow([]*Node{
		{ID: "t", Type: NodeTypeTrigger},
		{ID: "a", Type: NodeTypeAction},
		{ID: "orphan", Type: NodeTypeAction},
	}, []*Edge{
		{ID: "e1", Source: "t", Target: "a"},
	})

	if err := wf.ValidateGraph(); !errors.Is(err, ErrUnreachableNode) {
		t.Errorf("Expected ErrUnreachableNode, got %v", err)
	}
}

func TestValidateGraph_DanglingEdge(t *testing.T) {
	wf := graphWorkflow([]*Node{
		{ID: "t", Type: NodeTypeTrigger},
	}, []*Edge{
		{ID: "e1", Source: "t", Target: "missing"},
	})

	if err := wf.ValidateGraph(); !errors.Is(err, ErrDanglingEdge) {
		t.Errorf("Expected ErrDanglingEdge, got %v", err)
	}
}

func TestValidateGraph_Valid(t *testing.T) {
	wf := graphWorkflow([]*Node{
		{ID: "t", Type: NodeTypeTrigger},
		{ID: "c", Type: NodeTypeCondition},
		{ID: "a", Type: NodeTypeAction},
	}, []*Edge{
		{ID: "e1", Source: "t", Target: "c"},
		{ID: "e2", Source: "c", Target: "a"},
	})

	if err := wf.ValidateGraph(); err != nil {
		t.Errorf("Expected valid graph, got %v", err)
	}
}

func TestNode_BranchDataValidation(t *testing.T) {
	node := &Node{
		ID:   "b",
		Type: NodeTypeBranch,
		Data: map[string]any{
			"branches": []any{
				map[string]any{"id": "high", "name": "High risk"},
			},
		},
	}

	if _, err := node.BranchData(); !errors.Is(err, ErrInvalidBranch) {
		t.Errorf("Expected ErrInvalidBranch for single branch, got %v", err)
	}

	node.Data = map[string]any{
		"branches": []any{
			map[string]any{"id": "high", "is_default": true},
			map[string]any{"id": "low", "is_default": true},
		},
	}

	if _, err := node.BranchData(); err == nil {
		t.Error("Expected error for two default branches")
	}
}

func TestNode_ActionDataDecode(t *testing.T) {
	node := &Node{
		ID:   "a",
		Type: NodeTypeAction,
		Data: map[string]any{
			"action_type": "send_sms",
			"config":      map[string]any{"to": "{{.trigger_data.guardian_phone}}"},
			"critical":    true,
		},
	}

	data, err := node.ActionData()
	if err != nil {
		t.Fatalf("Failed to decode action data: %v", err)
	}

	if data.ActionType != "send_sms" {
		t.Errorf("Expected action_type send_sms, got %s", data.ActionType)
	}

	if !data.Critical {
		t.Error("Expected critical flag to decode")
	}
}

func TestNode_WrongTypeAccessor(t *testing.T) {
	node := &Node{ID: "a", Type: NodeTypeAction}

	if _, err := node.DelayData(); !errors.Is(err, ErrWrongNodeType) {
		t.Errorf("Expected ErrWrongNodeType, got %v", err)
	}
}
