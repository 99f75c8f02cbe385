package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/persistence"
	"github.com/pulsehq/pulse-workflows/pkg/persistence/file"
)

func savedWorkflow(t *testing.T, persist *file.Persistence, id, orgID string, status models.WorkflowStatus) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:          id,
		OrgID:       orgID,
		Name:        "mentor check-in",
		Status:      status,
		TriggerType: models.TriggerTypeSurveyResponse,
		Nodes: []*models.Node{
			{ID: "t1", Type: models.NodeTypeTrigger},
		},
	}
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func TestWorkflowService_ListRequiresOrgID(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	_, err := service.ListWorkflows(context.Background(), ListWorkflowsRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyOrgID)
}

func TestWorkflowService_ListRejectsUnknownSortField(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	_, err := service.ListWorkflows(context.Background(), ListWorkflowsRequest{
		OrgID:  "org-1",
		SortBy: "execution_count",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSortField)
	assert.True(t, IsValidationError(err))
}

func TestWorkflowService_ListScopesToOrg(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persist)

	savedWorkflow(t, persist, "wf-a", "org-1", models.WorkflowStatusActive)
	savedWorkflow(t, persist, "wf-b", "org-2", models.WorkflowStatusActive)

	result, err := service.ListWorkflows(context.Background(), ListWorkflowsRequest{OrgID: "org-1"})
	require.NoError(t, err)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "wf-a", result.Workflows[0].ID)
}

func TestWorkflowService_FetchByIDHidesOtherOrgs(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persist)

	savedWorkflow(t, persist, "wf-a", "org-1", models.WorkflowStatusActive)

	_, err := service.FetchByID(context.Background(), "org-2", "wf-a")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowService_CreateStartsAsDraft(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persist)

	created, err := service.Create(context.Background(), &models.Workflow{
		OrgID:       "org-1",
		Name:        "attendance alert",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeMetricThreshold,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, models.WorkflowModeAdvanced, created.Mode)
}

func TestWorkflowService_SaveGraphOnArchivedIsConflict(t *testing.T) {
	persist := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persist)

	workflow := savedWorkflow(t, persist, "wf-a", "org-1", models.WorkflowStatusActive)
	require.NoError(t, service.Archive(context.Background(), "org-1", workflow.ID))

	err := service.SaveGraph(context.Background(), "org-1", workflow.ID,
		[]*models.Node{{ID: "t1", Type: models.NodeTypeTrigger}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkflowImmutable))
	assert.True(t, IsConflictError(err))
}
