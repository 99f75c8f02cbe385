package trigger

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/models"
)

func testMatcher() *Matcher {
	return NewMatcher(slog.New(slog.NewTextHandler(testWriter{}, nil)))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func activeWorkflow(orgID, triggerType string, config map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:            uuid.Must(uuid.NewV7()).String(),
		OrgID:         orgID,
		Name:          "test workflow",
		Status:        models.WorkflowStatusActive,
		TriggerType:   triggerType,
		TriggerConfig: config,
		Nodes: []*models.Node{
			{ID: "trigger-1", Type: models.NodeTypeTrigger},
		},
	}
}

func surveyEvent(orgID string, payload map[string]any) *events.TriggerEvent {
	return &events.TriggerEvent{
		ID:         uuid.Must(uuid.NewV7()).String(),
		EventType:  models.TriggerTypeSurveyResponse,
		OrgID:      orgID,
		Source:     "surveys",
		Payload:    payload,
		OccurredAt: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestMatchWorkflows_OrgAndTypeIsolation(t *testing.T) {
	matcher := testMatcher()

	sameOrg := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, nil)
	otherOrg := activeWorkflow("org-2", models.TriggerTypeSurveyResponse, nil)
	otherType := activeWorkflow("org-1", models.TriggerTypeMetricThreshold, nil)

	event := surveyEvent("org-1", map[string]any{"survey_id": "s-1"})

	matches := matcher.MatchWorkflows(event, []*models.Workflow{sameOrg, otherOrg, otherType})

	require.Len(t, matches, 1)
	assert.Equal(t, sameOrg.ID, matches[0].Workflow.ID)
}

func TestMatchWorkflows_SkipsNonActive(t *testing.T) {
	matcher := testMatcher()

	paused := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, nil)
	paused.Status = models.WorkflowStatusPaused

	draft := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, nil)
	draft.Status = models.WorkflowStatusDraft

	event := surveyEvent("org-1", map[string]any{})

	matches := matcher.MatchWorkflows(event, []*models.Workflow{paused, draft})
	assert.Empty(t, matches)
}

func TestMatchWorkflows_ExactMatchFilters(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"survey_id": "s-1",
	})

	hit := surveyEvent("org-1", map[string]any{"survey_id": "s-1"})
	miss := surveyEvent("org-1", map[string]any{"survey_id": "s-2"})
	absent := surveyEvent("org-1", map[string]any{})

	assert.Len(t, matcher.MatchWorkflows(hit, []*models.Workflow{workflow}), 1)
	assert.Empty(t, matcher.MatchWorkflows(miss, []*models.Workflow{workflow}))
	assert.Empty(t, matcher.MatchWorkflows(absent, []*models.Workflow{workflow}))
}

func TestMatchWorkflows_RiskLevelScalarAndList(t *testing.T) {
	matcher := testMatcher()

	scalar := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"risk_level": "high",
	})
	list := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"risk_level": []any{"high", "critical"},
	})

	high := surveyEvent("org-1", map[string]any{"risk_level": "high"})
	critical := surveyEvent("org-1", map[string]any{"risk_level": "critical"})
	low := surveyEvent("org-1", map[string]any{"risk_level": "low"})

	assert.Len(t, matcher.MatchWorkflows(high, []*models.Workflow{scalar}), 1)
	assert.Empty(t, matcher.MatchWorkflows(critical, []*models.Workflow{scalar}))

	assert.Len(t, matcher.MatchWorkflows(high, []*models.Workflow{list}), 1)
	assert.Len(t, matcher.MatchWorkflows(critical, []*models.Workflow{list}), 1)
	assert.Empty(t, matcher.MatchWorkflows(low, []*models.Workflow{list}))
}

func TestMatchWorkflows_ScoreThreshold(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"score_threshold": 40,
		"score_operator":  models.OpLessThan,
	})

	below := surveyEvent("org-1", map[string]any{"overall_score": 25.5})
	above := surveyEvent("org-1", map[string]any{"overall_score": 80})
	missing := surveyEvent("org-1", map[string]any{})

	assert.Len(t, matcher.MatchWorkflows(below, []*models.Workflow{workflow}), 1)
	assert.Empty(t, matcher.MatchWorkflows(above, []*models.Workflow{workflow}))

	// Fail-closed: no score on the event means no fire.
	assert.Empty(t, matcher.MatchWorkflows(missing, []*models.Workflow{workflow}))
}

func TestMatchWorkflows_ScoreOperatorDefaultsToGreaterEqual(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"score_threshold": 70,
	})

	event := surveyEvent("org-1", map[string]any{"overall_score": 70})
	assert.Len(t, matcher.MatchWorkflows(event, []*models.Workflow{workflow}), 1)
}

func TestMatchWorkflows_AnswerConditionsAllMustPass(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"answer_conditions": []any{
			map[string]any{"question_id": "q1", "operator": "=", "value": "yes"},
			map[string]any{"question_id": "q2", "operator": "<", "value": 3},
		},
	})

	both := surveyEvent("org-1", map[string]any{
		"responses": map[string]any{"q1": "yes", "q2": 2},
	})
	oneOnly := surveyEvent("org-1", map[string]any{
		"responses": map[string]any{"q1": "yes", "q2": 5},
	})
	missingAnswer := surveyEvent("org-1", map[string]any{
		"responses": map[string]any{"q1": "yes"},
	})

	assert.Len(t, matcher.MatchWorkflows(both, []*models.Workflow{workflow}), 1)
	assert.Empty(t, matcher.MatchWorkflows(oneOnly, []*models.Workflow{workflow}))
	assert.Empty(t, matcher.MatchWorkflows(missingAnswer, []*models.Workflow{workflow}))
}

func TestMatchWorkflows_MalformedConfigIsolated(t *testing.T) {
	matcher := testMatcher()

	malformed := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"answer_conditions": "not a list",
	})
	healthy := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, nil)

	event := surveyEvent("org-1", map[string]any{"survey_id": "s-1"})

	matches := matcher.MatchWorkflows(event, []*models.Workflow{malformed, healthy})

	require.Len(t, matches, 1)
	assert.Equal(t, healthy.ID, matches[0].Workflow.ID)
}

func TestMatchWorkflows_UnknownScoreOperatorFails(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, map[string]any{
		"score_threshold": 40,
		"score_operator":  "between",
	})

	event := surveyEvent("org-1", map[string]any{"overall_score": 10})
	assert.Empty(t, matcher.MatchWorkflows(event, []*models.Workflow{workflow}))
}

func TestMatchWorkflows_NormalizedTriggerData(t *testing.T) {
	matcher := testMatcher()

	workflow := activeWorkflow("org-1", models.TriggerTypeSurveyResponse, nil)
	event := surveyEvent("org-1", map[string]any{
		"survey_id":     "s-1",
		"overall_score": 42.0,
	})

	matches := matcher.MatchWorkflows(event, []*models.Workflow{workflow})
	require.Len(t, matches, 1)

	data := matches[0].TriggerData
	assert.Equal(t, "s-1", data["survey_id"])
	assert.Equal(t, 42.0, data["overall_score"])
	assert.Equal(t, event.ID, data["event_id"])
	assert.Equal(t, models.TriggerTypeSurveyResponse, data["event_type"])
	assert.Equal(t, "2025-03-10T09:30:00Z", data["occurred_at"])
}
