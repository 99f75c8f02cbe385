// Package worker consumes workflow dispatch events and drives the engine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/actions/workflowtrigger"
	"github.com/pulsehq/pulse-workflows/pkg/engine"
	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/guard"
	"github.com/pulsehq/pulse-workflows/pkg/metrics"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/otelhelper"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Worker runs executions for dispatched workflows and resumes the ones
// parked on delays.
type Worker struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

func NewWorker(eng *engine.Engine, m *metrics.Metrics, tracer trace.Tracer, logger *slog.Logger) *Worker {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("worker")
	}

	return &Worker{
		engine:  eng,
		metrics: m,
		tracer:  tracer,
		logger:  logger.With("module", "worker"),
	}
}

// HandleWorkflowTriggered starts one execution for a dispatch event. A
// workflow that disappeared or was paused since dispatch drops the event
// instead of retrying it forever.
func (w *Worker) HandleWorkflowTriggered(ctx context.Context, event any) error {
	dispatch, ok := event.(*events.WorkflowTriggered)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.execute",
		attribute.String(otelhelper.WorkflowIDKey, dispatch.WorkflowID),
		attribute.String(otelhelper.OrgIDKey, dispatch.OrgID),
	)
	defer span.End()

	execContext := map[string]any{
		workflowtrigger.DepthKey: dispatch.Depth,
	}

	execution, err := w.engine.Start(ctx, dispatch.WorkflowID, dispatch.TriggeredBy, dispatch.TriggerData, execContext)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			w.logger.WarnContext(ctx, "Dropping dispatch for missing workflow",
				"workflow_id", dispatch.WorkflowID)

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	w.record(execution)

	return nil
}

// Resume continues one waiting execution. Satisfies scheduler.Resumer.
func (w *Worker) Resume(ctx context.Context, executionID string) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	execution, err := w.engine.Resume(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	w.record(execution)

	return nil
}

func (w *Worker) record(execution *models.Execution) {
	if execution == nil {
		return
	}

	switch execution.Status {
	case models.ExecutionStatusRunning:
		w.metrics.ExecutionsStarted.Inc()
	case models.ExecutionStatusCompleted:
		w.metrics.ExecutionsStarted.Inc()
		w.metrics.ExecutionsCompleted.Inc()
		w.metrics.ExecutionDuration.Observe(execution.DurationSeconds)
	case models.ExecutionStatusFailed:
		w.metrics.ExecutionsStarted.Inc()
		w.metrics.ExecutionsFailed.Inc()
	case models.ExecutionStatusWaiting, models.ExecutionStatusCancelled:
		w.metrics.ExecutionsStarted.Inc()
	}
}

// Dispatcher publishes dispatch events on behalf of trigger-workflow
// actions. The guard applies to chained dispatches exactly as it does to
// event-driven ones.
type Dispatcher struct {
	persistence persistence.Persistence
	guard       guard.Guard
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewDispatcher(p persistence.Persistence, g guard.Guard, publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		persistence: p,
		guard:       g,
		publisher:   publisher,
		logger:      logger.With("module", "dispatcher"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DispatchWorkflow fires another workflow in the same organization.
func (d *Dispatcher) DispatchWorkflow(ctx context.Context, workflowID, orgID string, triggerData map[string]any, depth int) error {
	workflow, err := d.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.OrgID != orgID {
		return fmt.Errorf("workflow %s does not belong to organization %s", workflowID, orgID)
	}

	if !workflow.IsExecutable() {
		return fmt.Errorf("workflow %s is not executable (status %s)", workflowID, workflow.Status)
	}

	decision, err := d.guard.Allow(ctx, workflow, d.now())
	if err != nil {
		return err
	}

	if !decision.Allowed {
		d.logger.InfoContext(ctx, "Chained dispatch suppressed",
			"workflow_id", workflowID, "reason", decision.Reason)

		return nil
	}

	event := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, workflowID),
		OrgID:       orgID,
		TriggeredBy: "workflow",
		TriggerData: triggerData,
		Depth:       depth,
	}

	return d.publisher.Publish(ctx, workflowID, event)
}
