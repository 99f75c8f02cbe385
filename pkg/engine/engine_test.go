package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/eventbus"
	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/file"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
)

// recordingAction counts executions per marker so tests can assert which
// paths ran and how often.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(marker string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, marker)
}

func (r *recorder) count(marker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, call := range r.calls {
		if call == marker {
			n++
		}
	}

	return n
}

type testAction struct {
	recorder *recorder
	marker   string
	fail     bool
}

func (a *testAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (map[string]any, error) {
	a.recorder.record(a.marker)

	if a.fail {
		return nil, errors.New("simulated action failure")
	}

	return map[string]any{"marker": a.marker}, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// capturingPublisher collects published lifecycle events.
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

func (p *capturingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type fixture struct {
	engine    *Engine
	persist   *file.Persistence
	recorder  *recorder
	publisher *capturingPublisher
	clock     *fakeClock
	root      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	persist := file.NewPersistence(root)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := &recorder{}
	reg := registry.NewRegistry(logger)
	reg.RegisterAction(&recordingFactory{recorder: rec})

	publisher := &capturingPublisher{}
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}

	eng := NewEngine(persist, reg, publisher, logger, WithClock(clock.Now))

	return &fixture{
		engine:    eng,
		persist:   persist,
		recorder:  rec,
		publisher: publisher,
		clock:     clock,
		root:      root,
	}
}

// recordingFactory satisfies protocol.ActionFactory.
type recordingFactory struct {
	recorder *recorder
}

func (f *recordingFactory) Create(config map[string]any) (protocol.Action, error) {
	marker, _ := config["marker"].(string)
	fail, _ := config["fail"].(bool)

	return &testAction{recorder: f.recorder, marker: marker, fail: fail}, nil
}

func (f *recordingFactory) ID() string             { return "test_action" }
func (f *recordingFactory) Name() string           { return "Test Action" }
func (f *recordingFactory) Description() string    { return "records invocations" }
func (f *recordingFactory) Schema() map[string]any { return nil }

func actionNode(id, marker string, critical, fail bool) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeAction,
		Data: map[string]any{
			"action_type": "test_action",
			"config":      map[string]any{"marker": marker, "fail": fail},
			"critical":    critical,
		},
	}
}

func saveWorkflow(t *testing.T, f *fixture, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.persist.WorkflowRepository().Save(context.Background(), workflow))
}

func linearWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		OrgID:       "org-1",
		Name:        "linear",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			actionNode("a1", "first", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}
}

func TestEngine_LinearExecutionCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saveWorkflow(t, f, linearWorkflow("wf-1"))

	execution, err := f.engine.Start(ctx, "wf-1", "survey_response",
		map[string]any{"survey_id": "s-1"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 1, f.recorder.count("first"))
	assert.Equal(t, models.NodeResultSuccess, execution.NodeResults["t1"].Status)
	assert.Equal(t, models.NodeResultSuccess, execution.NodeResults["a1"].Status)
	assert.Equal(t, "first", execution.NodeResults["a1"].Output["marker"])

	types := f.publisher.types()
	assert.Contains(t, types, events.ExecutionStartedEvent)
	assert.Contains(t, types, events.ExecutionCompletedEvent)

	// Execution count bumps on start.
	workflow, err := f.persist.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.ExecutionCount)
	require.NotNil(t, workflow.LastTriggeredAt)
}

func TestEngine_ConditionFalsePrunesPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:          "wf-cond",
		OrgID:       "org-1",
		Name:        "conditioned",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "c1", Type: models.NodeTypeCondition, Data: map[string]any{
				"conditions": []any{
					map[string]any{"field": "risk_level", "operator": "=", "value": "high"},
				},
			}},
			actionNode("a1", "gated", false, false),
			actionNode("a2", "always", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "c1"},
			{ID: "e2", Source: "c1", Target: "a1"},
			{ID: "e3", Source: "t1", Target: "a2"},
		},
	}
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-cond", "survey_response",
		map[string]any{"risk_level": "low"}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.NodeResultSkipped, execution.NodeResults["c1"].Status)

	// The gated path never ran, the sibling path did.
	assert.Equal(t, 0, f.recorder.count("gated"))
	assert.Equal(t, 1, f.recorder.count("always"))
	assert.NotContains(t, execution.NodeResults, "a1")
}

func TestEngine_BranchExclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:          "wf-branch",
		OrgID:       "org-1",
		Name:        "branched",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "b1", Type: models.NodeTypeBranch, Data: map[string]any{
				"branches": []any{
					map[string]any{
						"id":   "low-score",
						"name": "Low score",
						"conditions": []any{
							map[string]any{"field": "overall_score", "operator": "<", "value": 40},
						},
					},
					map[string]any{
						"id":         "everyone-else",
						"name":       "Everyone else",
						"is_default": true,
					},
				},
			}},
			actionNode("a-low", "low-path", false, false),
			actionNode("a-default", "default-path", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "b1"},
			{ID: "e2", Source: "b1", Target: "a-low", SourceHandle: "low-score"},
			{ID: "e3", Source: "b1", Target: "a-default", SourceHandle: "everyone-else"},
		},
	}
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-branch", "survey_response",
		map[string]any{"overall_score": 25.0}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "low-score", execution.NodeResults["b1"].Output["branch_id"])
	assert.Equal(t, 1, f.recorder.count("low-path"))
	assert.Equal(t, 0, f.recorder.count("default-path"))

	// A high score takes the default branch instead.
	execution, err = f.engine.Start(ctx, "wf-branch", "survey_response",
		map[string]any{"overall_score": 90.0}, nil)
	require.NoError(t, err)

	assert.Equal(t, "everyone-else", execution.NodeResults["b1"].Output["branch_id"])
	assert.Equal(t, 1, f.recorder.count("default-path"))
	assert.Equal(t, 1, f.recorder.count("low-path"))
}

func TestEngine_MergeNodeExecutesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Diamond: trigger fans out to two actions that both feed one merge
	// action.
	workflow := &models.Workflow{
		ID:          "wf-merge",
		OrgID:       "org-1",
		Name:        "diamond",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			actionNode("a1", "left", false, false),
			actionNode("a2", "right", false, false),
			actionNode("a3", "merge", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
			{ID: "e2", Source: "t1", Target: "a2"},
			{ID: "e3", Source: "a1", Target: "a3"},
			{ID: "e4", Source: "a2", Target: "a3"},
		},
	}
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-merge", "survey_response", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 1, f.recorder.count("left"))
	assert.Equal(t, 1, f.recorder.count("right"))
	assert.Equal(t, 1, f.recorder.count("merge"))
	assert.Len(t, execution.NodeResults, 4)
}

func TestEngine_DelaySuspendsAndResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:          "wf-delay",
		OrgID:       "org-1",
		Name:        "delayed",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "d1", Type: models.NodeTypeDelay, Data: map[string]any{
				"duration": 2, "unit": "hours",
			}},
			actionNode("a1", "after-delay", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
			{ID: "e2", Source: "d1", Target: "a1"},
		},
	}
	saveWorkflow(t, f, workflow)

	started := f.clock.Now()

	execution, err := f.engine.Start(ctx, "wf-delay", "survey_response", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, execution.Status)
	assert.Equal(t, "d1", execution.CurrentNodeID)
	require.NotNil(t, execution.ResumeAt)
	assert.Equal(t, started.Add(2*time.Hour), execution.ResumeAt.UTC())
	assert.Equal(t, 0, f.recorder.count("after-delay"))
	assert.Contains(t, f.publisher.types(), events.ExecutionWaitingEvent)

	// Persisted waiting state is what the scheduler sees.
	due, err := f.persist.ExecutionRepository().DueWaiting(ctx, started.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	f.clock.Advance(2 * time.Hour)

	resumed, err := f.engine.Resume(ctx, execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
	assert.Equal(t, 1, f.recorder.count("after-delay"))
	assert.Equal(t, models.NodeResultSuccess, resumed.NodeResults["d1"].Status)
	assert.Empty(t, resumed.CurrentNodeID)
	assert.Nil(t, resumed.ResumeAt)
	assert.Contains(t, f.publisher.types(), events.ExecutionResumedEvent)
}

func TestEngine_CriticalActionFailureFailsExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := linearWorkflow("wf-crit")
	workflow.Nodes[1] = actionNode("a1", "boom", true, true)
	workflow.Nodes = append(workflow.Nodes, actionNode("a2", "downstream", false, false))
	workflow.Edges = append(workflow.Edges, &models.Edge{ID: "e2", Source: "a1", Target: "a2"})
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-crit", "survey_response", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, models.NodeResultFailed, execution.NodeResults["a1"].Status)
	assert.Equal(t, 0, f.recorder.count("downstream"))
	assert.NotEmpty(t, execution.ErrorMessage)
	assert.Contains(t, f.publisher.types(), events.ExecutionFailedEvent)
}

func TestEngine_NonCriticalFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := linearWorkflow("wf-soft")
	workflow.Nodes[1] = actionNode("a1", "soft-boom", false, true)
	workflow.Nodes = append(workflow.Nodes, actionNode("a2", "downstream", false, false))
	workflow.Edges = append(workflow.Edges, &models.Edge{ID: "e2", Source: "a1", Target: "a2"})
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-soft", "survey_response", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, models.NodeResultFailed, execution.NodeResults["a1"].Status)
	assert.Equal(t, "simulated action failure", execution.NodeResults["a1"].Error)
	assert.Equal(t, 1, f.recorder.count("downstream"))
}

func TestEngine_StartRejectsNonExecutableWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := linearWorkflow("wf-paused")
	workflow.Status = models.WorkflowStatusPaused
	saveWorkflow(t, f, workflow)

	_, err := f.engine.Start(ctx, "wf-paused", "survey_response", nil, nil)
	require.Error(t, err)
}

func TestEngine_ResumeCancelledExecutionIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:          "wf-cancel",
		OrgID:       "org-1",
		Name:        "cancellable",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "d1", Type: models.NodeTypeDelay, Data: map[string]any{"duration": 1, "unit": "hours"}},
			actionNode("a1", "late", false, false),
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
			{ID: "e2", Source: "d1", Target: "a1"},
		},
	}
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-cancel", "survey_response", nil, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	require.NoError(t, f.persist.ExecutionRepository().Cancel(ctx, execution.ID))

	f.clock.Advance(2 * time.Hour)

	resumed, err := f.engine.Resume(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, resumed.Status)
	assert.Equal(t, 0, f.recorder.count("late"))
}

func TestEngine_ResumeOrphanedExecutionCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:          "wf-orphan",
		OrgID:       "org-1",
		Name:        "orphaned",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "d1", Type: models.NodeTypeDelay, Data: map[string]any{"duration": 1, "unit": "minutes"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "d1"},
		},
	}
	saveWorkflow(t, f, workflow)

	execution, err := f.engine.Start(ctx, "wf-orphan", "survey_response", nil, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	// Remove the workflow document out from under the waiting execution.
	require.NoError(t, os.Remove(path.Join(f.root, "workflows", "wf-orphan.json")))

	f.clock.Advance(time.Hour)

	_, err = f.engine.Resume(ctx, execution.ID)
	require.NoError(t, err)

	loaded, err := f.persist.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, loaded.Status)
	assert.Contains(t, f.publisher.types(), events.ExecutionCancelledEvent)
}
