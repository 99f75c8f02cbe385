// Package models defines the core domain models for node-based workflow automation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, not executable
	WorkflowStatusActive   WorkflowStatus = "active"   // Executable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not executable
	WorkflowStatusArchived WorkflowStatus = "archived" // Soft-deleted, kept for execution history
)

// WorkflowMode distinguishes wizard-built workflows from canvas-built ones.
type WorkflowMode string

const (
	WorkflowModeSimple   WorkflowMode = "simple"
	WorkflowModeAdvanced WorkflowMode = "advanced"
)

// Built-in trigger types. The trigger type of a workflow must match the
// event category of an inbound event for the workflow to be considered.
const (
	TriggerTypeSurveyResponse  = "survey_response"
	TriggerTypeMetricThreshold = "metric_threshold"
	TriggerTypeSchedule        = "schedule"
	TriggerTypeManual          = "manual"
)

// WorkflowSettings carries the per-workflow execution policy.
type WorkflowSettings struct {
	CooldownMinutes      int      `json:"cooldown_minutes"`
	MaxExecutionsPerDay  int      `json:"max_executions_per_day"`
	Timezone             string   `json:"timezone"`
	ActiveHours          []string `json:"active_hours,omitempty"` // "HH:MM-HH:MM" windows, empty means always
}

// Workflow represents a named, versioned automation definition: a trigger,
// a node graph, and execution settings.
type Workflow struct {
	ID              string           `json:"id"`
	OrgID           string           `json:"org_id"        validate:"required"`
	Name            string           `json:"name"          validate:"required,min=3"`
	Status          WorkflowStatus   `json:"status"        validate:"required"`
	Mode            WorkflowMode     `json:"mode"`
	TriggerType     string           `json:"trigger_type"  validate:"required"`
	TriggerConfig   map[string]any   `json:"trigger_config"`
	Nodes           []*Node          `json:"nodes"`
	Edges           []*Edge          `json:"edges"`
	Settings        WorkflowSettings `json:"settings"`
	ExecutionCount  int64            `json:"execution_count"`
	LastTriggeredAt *time.Time       `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ArchivedAt      *time.Time       `json:"archived_at,omitempty"`
}

var (
	ErrNoTriggerNode        = errors.New("workflow must have exactly one trigger node")
	ErrMultipleTriggerNodes = errors.New("workflow has more than one trigger node")
	ErrUnreachableNode      = errors.New("node is not reachable from the trigger node")
	ErrDanglingEdge         = errors.New("edge references an unknown node")
)

// TriggerNode returns the single trigger node of the workflow.
func (w *Workflow) TriggerNode() (*Node, error) {
	var trigger *Node

	for _, node := range w.Nodes {
		if node.Type != NodeTypeTrigger {
			continue
		}

		if trigger != nil {
			return nil, ErrMultipleTriggerNodes
		}

		trigger = node
	}

	if trigger == nil {
		return nil, ErrNoTriggerNode
	}

	return trigger, nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns all edges leaving the given node.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			out = append(out, edge)
		}
	}

	return out
}

// ValidateGraph checks the structural invariants of the node graph: exactly
// one trigger node exists, every edge references known nodes, and every
// non-trigger node is reachable from the trigger.
func (w *Workflow) ValidateGraph() error {
	trigger, err := w.TriggerNode()
	if err != nil {
		return err
	}

	byID := make(map[string]*Node, len(w.Nodes))
	for _, node := range w.Nodes {
		byID[node.ID] = node
	}

	for _, edge := range w.Edges {
		if _, ok := byID[edge.Source]; !ok {
			return fmt.Errorf("%w: source %s", ErrDanglingEdge, edge.Source)
		}

		if _, ok := byID[edge.Target]; !ok {
			return fmt.Errorf("%w: target %s", ErrDanglingEdge, edge.Target)
		}
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range w.OutgoingEdges(current) {
			if !reachable[edge.Target] {
				reachable[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	for _, node := range w.Nodes {
		if !reachable[node.ID] {
			return fmt.Errorf("%w: %s", ErrUnreachableNode, node.ID)
		}
	}

	return nil
}

// IsExecutable reports whether the workflow can be dispatched.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusActive && w.ArchivedAt == nil
}
