// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name          string                  `json:"name"           validate:"required,min=3"`
	TriggerType   string                  `json:"trigger_type"   validate:"required,oneof=survey_response metric_threshold schedule manual"`
	TriggerConfig map[string]any          `json:"trigger_config"`
	Mode          models.WorkflowMode     `json:"mode"           validate:"omitempty,oneof=simple advanced"`
	Settings      models.WorkflowSettings `json:"settings"`
}

// SaveGraphRequest is the autosave body. Nodes and edges are the only
// fields this endpoint accepts; everything else about the workflow is
// managed through its own endpoint.
type SaveGraphRequest struct {
	Nodes []*models.Node `json:"nodes" validate:"required"`
	Edges []*models.Edge `json:"edges"`
}

// FireNowRequest carries an optional sample payload for a manual fire.
type FireNowRequest struct {
	Payload map[string]any `json:"payload"`
}

// ExecutionSummary is the list-view projection of an execution. Full node
// results stay on the detail endpoint.
type ExecutionSummary struct {
	ID              string  `json:"id"`
	WorkflowID      string  `json:"workflow_id"`
	Status          string  `json:"status"`
	TriggeredBy     string  `json:"triggered_by"`
	StartedAt       string  `json:"started_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	NodesExecuted   int     `json:"nodes_executed"`
}

// TransformExecutionSummary projects an execution for list responses.
func TransformExecutionSummary(execution *models.Execution) ExecutionSummary {
	summary := ExecutionSummary{
		ID:              execution.ID,
		WorkflowID:      execution.WorkflowID,
		Status:          string(execution.Status),
		TriggeredBy:     execution.TriggeredBy,
		StartedAt:       execution.StartedAt.Format(time.RFC3339),
		DurationSeconds: execution.DurationSeconds,
		NodesExecuted:   len(execution.NodeResults),
	}

	if execution.CompletedAt != nil {
		completed := execution.CompletedAt.Format(time.RFC3339)
		summary.CompletedAt = &completed
	}

	return summary
}
