// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topics.
const TriggerTopic = "pulse.trigger.events"    // Inbound domain events (survey completions, metric crossings, ticks)
const WorkflowTopic = "pulse.workflow.events"  // Workflow dispatch and execution lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow dispatch events.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// WorkflowTriggered is published by the activator for every matched,
// guard-approved workflow. Depth counts trigger_workflow recursion.
type WorkflowTriggered struct {
	BaseEvent

	OrgID       string         `json:"org_id"`
	TriggeredBy string         `json:"triggered_by"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Depth       int            `json:"depth"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TriggeredBy string `json:"triggered_by"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionWaiting struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string  `json:"execution_id"`
	DurationSecs  float64 `json:"duration_seconds"`
	NodesExecuted int     `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string  `json:"execution_id"`
	NodeID       string  `json:"node_id"`
	Error        string  `json:"error"`
	DurationSecs float64 `json:"duration_seconds"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// TriggerEvent is an inbound domain event: a survey completion, a metric
// threshold crossing, a schedule tick, or a manual fire. The payload is
// queried by key path during trigger matching.
type TriggerEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"` // survey_response, metric_threshold, schedule, manual
	OrgID      string         `json:"org_id"`
	Source     string         `json:"source,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

var (
	ErrMissingEventType = errors.New("trigger event is missing event_type")
	ErrMissingOrgID     = errors.New("trigger event is missing org_id")
)

// Validate checks the fields every inbound event source must supply.
func (e *TriggerEvent) Validate() error {
	if e.EventType == "" {
		return ErrMissingEventType
	}

	if e.OrgID == "" {
		return ErrMissingOrgID
	}

	return nil
}

func NewTriggerEvent(eventType, orgID string, payload map[string]any) *TriggerEvent {
	return &TriggerEvent{
		ID:         uuid.New().String(),
		EventType:  eventType,
		OrgID:      orgID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
