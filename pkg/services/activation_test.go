package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/file"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/registry"
)

type noopAction struct{}

func (noopAction) Execute(context.Context, models.ExecutionContext, *slog.Logger) (map[string]any, error) {
	return nil, nil
}

type noopFactory struct{}

func (noopFactory) Create(map[string]any) (protocol.Action, error) { return noopAction{}, nil }
func (noopFactory) ID() string                                     { return "send_email" }
func (noopFactory) Name() string                                   { return "Send Email" }
func (noopFactory) Description() string                            { return "sends an email" }

func (noopFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"to"},
		"properties": map[string]any{
			"to": map[string]any{"type": "string"},
		},
	}
}

func newActivationFixture(t *testing.T) (*Activation, *file.Persistence) {
	t.Helper()

	persist := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterAction(noopFactory{})

	return NewActivation(persist, reg), persist
}

func draftWorkflow(id string, nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		OrgID:       "org-1",
		Name:        "low score follow-up",
		Status:      models.WorkflowStatusDraft,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes:       nodes,
		Edges:       edges,
	}
}

func TestActivation_ActivatesValidDraft(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "a1", Type: models.NodeTypeAction, Data: map[string]any{
				"action_type": "send_email",
				"config":      map[string]any{"to": "mentor@example.edu"},
			}},
		},
		[]*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	activated, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)
}

func TestActivation_RejectsGraphWithoutTrigger(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{
			{ID: "a1", Type: models.NodeTypeAction, Data: map[string]any{
				"action_type": "send_email",
				"config":      map[string]any{"to": "mentor@example.edu"},
			}},
		}, nil)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	_, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestActivation_RejectsUnknownActionType(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "a1", Type: models.NodeTypeAction, Data: map[string]any{
				"action_type": "send_fax",
				"config":      map[string]any{},
			}},
		},
		[]*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	_, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidActionConfig)
}

func TestActivation_RejectsConfigFailingSchema(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "a1", Type: models.NodeTypeAction, Data: map[string]any{
				"action_type": "send_email",
				"config":      map[string]any{},
			}},
		},
		[]*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	_, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidActionConfig)
}

func TestActivation_ScheduleRequiresValidCron(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{{ID: "t1", Type: models.NodeTypeTrigger}}, nil)
	workflow.TriggerType = models.TriggerTypeSchedule
	workflow.TriggerConfig = map[string]any{"cron": "not a cron"}
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	_, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCron)

	workflow.TriggerConfig = map[string]any{"cron": "0 8 * * 1"}
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	activated, err := service.Activate(context.Background(), "org-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)
}

func TestActivation_PauseRequiresActive(t *testing.T) {
	service, persist := newActivationFixture(t)

	workflow := draftWorkflow("wf-1",
		[]*models.Node{{ID: "t1", Type: models.NodeTypeTrigger}}, nil)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	_, err := service.Pause(context.Background(), "org-1", "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotExecutable)
}
