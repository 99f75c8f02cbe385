// Package trigger matches inbound domain events against workflow trigger configurations.
package trigger

import (
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/events"
	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// Filter categories recognized in a workflow's trigger_config. All
// categories present on the workflow must pass; an absent category is
// vacuously true.
const (
	filterRiskLevel        = "risk_level"
	filterScoreThreshold   = "score_threshold"
	filterScoreOperator    = "score_operator"
	filterAnswerConditions = "answer_conditions"
)

// exactMatchFilters must equal the event's corresponding payload field.
var exactMatchFilters = []string{"survey_id", "survey_type", "metric", "course_id"}

// Matcher decides which active workflows in an event's organization should
// fire for a given domain event.
type Matcher struct {
	logger *slog.Logger
}

// Match pairs a workflow with the normalized event data that seeds its
// execution context.
type Match struct {
	Workflow    *models.Workflow
	TriggerData map[string]any
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("module", "trigger_matcher")}
}

// MatchWorkflows evaluates the event against every candidate workflow. A
// malformed trigger_config makes that single workflow evaluate false; it
// never aborts matching for its siblings.
func (m *Matcher) MatchWorkflows(event *events.TriggerEvent, workflows []*models.Workflow) []Match {
	var matches []Match

	for _, workflow := range workflows {
		if !workflow.IsExecutable() {
			continue
		}

		if workflow.OrgID != event.OrgID || workflow.TriggerType != event.EventType {
			continue
		}

		if m.matchConfig(workflow, event.Payload) {
			matches = append(matches, Match{
				Workflow:    workflow,
				TriggerData: normalizeEventData(event),
			})
		}
	}

	m.logger.Debug("Completed trigger matching",
		"event_type", event.EventType,
		"org_id", event.OrgID,
		"candidates", len(workflows),
		"matches", len(matches))

	return matches
}

// matchConfig evaluates every configured filter category. All present
// categories must pass.
func (m *Matcher) matchConfig(workflow *models.Workflow, payload map[string]any) bool {
	config := workflow.TriggerConfig

	// Schedule ticks and manual fires carry the target workflow id and
	// only ever match that workflow.
	if target, ok := payload["workflow_id"].(string); ok && target != "" {
		if target != workflow.ID {
			return false
		}
	}

	for _, field := range exactMatchFilters {
		expected, ok := config[field]
		if !ok {
			continue
		}

		actual, ok := payload[field]
		if !ok || !models.CompareValues(actual, models.OpEqual, expected) {
			return false
		}
	}

	if expected, ok := config[filterRiskLevel]; ok {
		if !m.matchRiskLevel(payload["risk_level"], expected) {
			return false
		}
	}

	if threshold, ok := config[filterScoreThreshold]; ok {
		if !m.matchScore(workflow, payload, threshold) {
			return false
		}
	}

	if raw, ok := config[filterAnswerConditions]; ok {
		if !m.matchAnswerConditions(workflow, payload, raw) {
			return false
		}
	}

	return true
}

// matchRiskLevel accepts a scalar or a list; the event's risk level must
// be a member.
func (m *Matcher) matchRiskLevel(actual, expected any) bool {
	if actual == nil {
		return false
	}

	if list, ok := expected.([]any); ok {
		return models.CompareValues(actual, models.OpIn, list)
	}

	return models.CompareValues(actual, models.OpEqual, expected)
}

// matchScore applies score_operator to the event's score. Fail-closed: no
// score on the event means no fire. An unknown operator marks the config
// malformed and the workflow does not fire.
func (m *Matcher) matchScore(workflow *models.Workflow, payload map[string]any, threshold any) bool {
	operator, _ := workflow.TriggerConfig[filterScoreOperator].(string)
	if operator == "" {
		operator = models.OpGreaterEqual
	}

	if !validOperator(operator) {
		m.logger.Warn("Malformed trigger config: unknown score operator",
			"workflow_id", workflow.ID, "operator", operator)

		return false
	}

	score, ok := payload["overall_score"]
	if !ok || score == nil {
		return false
	}

	return models.CompareValues(score, operator, threshold)
}

// matchAnswerConditions checks every {question_id, operator, value} clause
// against the event's keyed responses. AND semantics; a missing response
// fails its clause; a non-list config is malformed and fails the workflow.
func (m *Matcher) matchAnswerConditions(workflow *models.Workflow, payload map[string]any, raw any) bool {
	clauses, ok := raw.([]any)
	if !ok {
		m.logger.Warn("Malformed trigger config: answer_conditions is not a list",
			"workflow_id", workflow.ID)

		return false
	}

	responses, _ := payload["responses"].(map[string]any)

	for _, rawClause := range clauses {
		clause, ok := rawClause.(map[string]any)
		if !ok {
			return false
		}

		questionID, _ := clause["question_id"].(string)
		operator, _ := clause["operator"].(string)

		if questionID == "" || !answerOperatorValid(operator) {
			m.logger.Warn("Malformed answer condition",
				"workflow_id", workflow.ID, "question_id", questionID, "operator", operator)

			return false
		}

		answer, ok := responses[questionID]
		if !ok || answer == nil {
			return false
		}

		if !models.CompareValues(answer, operator, clause["value"]) {
			return false
		}
	}

	return true
}

func validOperator(op string) bool {
	switch op {
	case models.OpEqual, models.OpNotEqual, models.OpLessThan, models.OpLessEqual,
		models.OpGreaterThan, models.OpGreaterEqual:
		return true
	default:
		return false
	}
}

func answerOperatorValid(op string) bool {
	return validOperator(op) || op == models.OpContains || op == models.OpIn
}

// normalizeEventData flattens the event into the map that seeds execution
// context, keeping the payload queryable by key path.
func normalizeEventData(event *events.TriggerEvent) map[string]any {
	data := make(map[string]any, len(event.Payload)+3)
	for key, value := range event.Payload {
		data[key] = value
	}

	data["event_id"] = event.ID
	data["event_type"] = event.EventType
	data["occurred_at"] = event.OccurredAt.UTC().Format("2006-01-02T15:04:05Z07:00")

	return data
}
