package models

import "time"

// ExecutionStatus is the per-execution state machine: running → (waiting ⇄
// resumed) → completed | failed | cancelled.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// NodeResultStatus is the outcome of a single visited node.
type NodeResultStatus string

const (
	NodeResultSuccess NodeResultStatus = "success"
	NodeResultFailed  NodeResultStatus = "failed"
	NodeResultSkipped NodeResultStatus = "skipped"
)

// NodeResult records the outcome of one visited node. NodeResults only ever
// contains entries for nodes actually visited.
type NodeResult struct {
	Status     NodeResultStatus `json:"status"`
	Output     map[string]any   `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	ExecutedAt time.Time        `json:"executed_at"`
}

// Execution is one run of a workflow against a triggering event.
type Execution struct {
	ID          string                `json:"id"`
	WorkflowID  string                `json:"workflow_id"`
	OrgID       string                `json:"org_id"`
	Status      ExecutionStatus       `json:"status"`
	TriggeredBy string                `json:"triggered_by"`
	TriggerData map[string]any        `json:"trigger_data,omitempty"`
	Context     map[string]any        `json:"context,omitempty"`
	NodeResults map[string]NodeResult `json:"node_results"`

	// Delay suspension state. While waiting, CurrentNodeID is the pending
	// delay node, ResumeAt is when it elapses, and Frontier holds the node
	// ids that were still queued when the execution suspended.
	CurrentNodeID string     `json:"current_node_id,omitempty"`
	ResumeAt      *time.Time `json:"resume_at,omitempty"`
	Frontier      []string   `json:"frontier,omitempty"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// IsTerminal reports whether the execution reached a final state.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// ExecutionContext is the view of a running execution handed to action
// handlers: the accumulated data available to nodes, seeded from the
// triggering event.
type ExecutionContext struct {
	ExecutionID string                `json:"execution_id"`
	WorkflowID  string                `json:"workflow_id"`
	OrgID       string                `json:"org_id"`
	TriggerData map[string]any        `json:"trigger_data,omitempty"`
	Context     map[string]any        `json:"context,omitempty"`
	NodeResults map[string]NodeResult `json:"node_results,omitempty"`
}

// ContextOf builds the handler-facing view of an execution.
func ContextOf(e *Execution) ExecutionContext {
	return ExecutionContext{
		ExecutionID: e.ID,
		WorkflowID:  e.WorkflowID,
		OrgID:       e.OrgID,
		TriggerData: e.TriggerData,
		Context:     e.Context,
		NodeResults: e.NodeResults,
	}
}
