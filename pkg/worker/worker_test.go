package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/engine"
	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/guard"
	"github.com/pulsehq/pulse-workflows/pkg/metrics"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/file"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) dispatches() []events.WorkflowTriggered {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dispatched []events.WorkflowTriggered

	for _, event := range p.events {
		if d, ok := event.(events.WorkflowTriggered); ok {
			dispatched = append(dispatched, d)
		}
	}

	return dispatched
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saveTriggerOnlyWorkflow(t *testing.T, persist *file.Persistence, id string, settings models.WorkflowSettings) {
	t.Helper()

	workflow := &models.Workflow{
		ID:          id,
		OrgID:       "org-1",
		Name:        "chained workflow",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Settings:    settings,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
		},
	}
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))
}

func TestWorker_DropsDispatchForMissingWorkflow(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	logger := testLogger()
	publisher := &capturingPublisher{}

	eng := engine.NewEngine(persist, registry.NewRegistry(logger), publisher, logger)
	w := NewWorker(eng, metrics.New(prometheus.NewRegistry()), nil, logger)

	event := &events.WorkflowTriggered{
		BaseEvent: events.NewBaseEvent(events.WorkflowTriggeredEvent, "wf-gone"),
		OrgID:     "org-1",
	}

	require.NoError(t, w.HandleWorkflowTriggered(context.Background(), event))
}

func TestWorker_RejectsUnexpectedEventType(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	logger := testLogger()

	eng := engine.NewEngine(persist, registry.NewRegistry(logger), &capturingPublisher{}, logger)
	w := NewWorker(eng, metrics.New(prometheus.NewRegistry()), nil, logger)

	err := w.HandleWorkflowTriggered(context.Background(), "not an event")
	require.Error(t, err)
}

func TestDispatcher_PublishesGuardedDispatch(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	saveTriggerOnlyWorkflow(t, persist, "wf-b", models.WorkflowSettings{})

	d := NewDispatcher(persist, guard.NewMemoryGuard(), publisher, testLogger())

	err := d.DispatchWorkflow(context.Background(), "wf-b", "org-1",
		map[string]any{"source_workflow_id": "wf-a"}, 2)
	require.NoError(t, err)

	dispatched := publisher.dispatches()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "wf-b", dispatched[0].WorkflowID)
	assert.Equal(t, "workflow", dispatched[0].TriggeredBy)
	assert.Equal(t, 2, dispatched[0].Depth)
}

func TestDispatcher_CooldownSuppressesChainedDispatch(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	saveTriggerOnlyWorkflow(t, persist, "wf-b", models.WorkflowSettings{CooldownMinutes: 30})

	d := NewDispatcher(persist, guard.NewMemoryGuard(), publisher, testLogger())
	d.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, d.DispatchWorkflow(context.Background(), "wf-b", "org-1", nil, 1))
	require.NoError(t, d.DispatchWorkflow(context.Background(), "wf-b", "org-1", nil, 1))

	assert.Len(t, publisher.dispatches(), 1)
}

func TestDispatcher_RejectsCrossOrgDispatch(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	saveTriggerOnlyWorkflow(t, persist, "wf-b", models.WorkflowSettings{})

	d := NewDispatcher(persist, guard.NewMemoryGuard(), publisher, testLogger())

	err := d.DispatchWorkflow(context.Background(), "wf-b", "org-2", nil, 1)
	require.Error(t, err)
	assert.Empty(t, publisher.dispatches())
}
