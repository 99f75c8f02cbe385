package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
)

func testWorkflow(id, orgID string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		OrgID:       orgID,
		Name:        "escalation workflow",
		Status:      models.WorkflowStatusActive,
		Mode:        models.WorkflowModeAdvanced,
		TriggerType: models.TriggerTypeSurveyResponse,
		TriggerConfig: map[string]any{
			"risk_level": "high",
		},
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
			{ID: "a1", Type: models.NodeTypeAction, Data: map[string]any{"action_type": "send_sms"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
		Settings: models.WorkflowSettings{CooldownMinutes: 30},
	}
}

func TestWorkflowRepository_SaveAndGetByID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := testWorkflow("wf-1", "org-1")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, workflow.OrgID, loaded.OrgID)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Edges, 1)
	assert.Equal(t, "high", loaded.TriggerConfig["risk_level"])
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestWorkflowRepository_GetByIDNotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.WorkflowRepository().GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_ListActiveByTrigger(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := p.WorkflowRepository()

	active := testWorkflow("wf-active", "org-1")
	require.NoError(t, repo.Save(ctx, active))

	paused := testWorkflow("wf-paused", "org-1")
	paused.Status = models.WorkflowStatusPaused
	require.NoError(t, repo.Save(ctx, paused))

	otherOrg := testWorkflow("wf-other", "org-2")
	require.NoError(t, repo.Save(ctx, otherOrg))

	otherTrigger := testWorkflow("wf-metric", "org-1")
	otherTrigger.TriggerType = models.TriggerTypeMetricThreshold
	require.NoError(t, repo.Save(ctx, otherTrigger))

	candidates, err := repo.ListActiveByTrigger(ctx, "org-1", models.TriggerTypeSurveyResponse)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "wf-active", candidates[0].ID)
}

func TestWorkflowRepository_SaveGraphPreservesSettings(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := p.WorkflowRepository()

	workflow := testWorkflow("wf-1", "org-1")
	require.NoError(t, repo.Save(ctx, workflow))

	newNodes := []*models.Node{
		{ID: "t1", Type: models.NodeTypeTrigger},
		{ID: "d1", Type: models.NodeTypeDelay, Data: map[string]any{"duration": 1, "unit": "hours"}},
	}
	newEdges := []*models.Edge{
		{ID: "e1", Source: "t1", Target: "d1"},
	}

	require.NoError(t, repo.SaveGraph(ctx, "wf-1", newNodes, newEdges))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)

	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, models.NodeTypeDelay, loaded.Nodes[1].Type)
	assert.Equal(t, 30, loaded.Settings.CooldownMinutes)
	assert.Equal(t, "escalation workflow", loaded.Name)
}

func TestWorkflowRepository_ArchiveBlocksGraphSaves(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := p.WorkflowRepository()

	workflow := testWorkflow("wf-1", "org-1")
	require.NoError(t, repo.Save(ctx, workflow))
	require.NoError(t, repo.Archive(ctx, "wf-1"))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusArchived, loaded.Status)
	assert.NotNil(t, loaded.ArchivedAt)

	err = repo.SaveGraph(ctx, "wf-1", nil, nil)
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowArchived(err))
}

func TestWorkflowRepository_RecordTriggered(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := p.WorkflowRepository()

	workflow := testWorkflow("wf-1", "org-1")
	require.NoError(t, repo.Save(ctx, workflow))

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordTriggered(ctx, "wf-1", at))
	require.NoError(t, repo.RecordTriggered(ctx, "wf-1", at.Add(time.Hour)))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.ExecutionCount)
	require.NotNil(t, loaded.LastTriggeredAt)
	assert.Equal(t, at.Add(time.Hour), loaded.LastTriggeredAt.UTC())
}

func TestWorkflowRepository_ListFiltersByOrg(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	repo := p.WorkflowRepository()

	require.NoError(t, repo.Save(ctx, testWorkflow("wf-1", "org-1")))
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-2", "org-1")))
	require.NoError(t, repo.Save(ctx, testWorkflow("wf-3", "org-2")))

	result, err := repo.List(ctx, persistence.ListWorkflowsOptions{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.Len(t, result.Workflows, 2)
	assert.False(t, result.HasNextPage)
}
