package models

import "testing"

func TestCondition_NumericOperators(t *testing.T) {
	context := map[string]any{"overall_score": 3.0}

	tests := []struct {
		name     string
		operator string
		value    any
		want     bool
	}{
		{"lte boundary", OpLessEqual, 3.0, true},
		{"lte above", OpLessEqual, 2.99, false},
		{"lt", OpLessThan, 3.01, true},
		{"gte boundary", OpGreaterEqual, 3.0, true},
		{"gt", OpGreaterThan, 3.0, false},
		{"eq numeric string", OpEqual, "3", true},
		{"neq", OpNotEqual, 4.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := Condition{Field: "overall_score", Operator: tt.operator, Value: tt.value}
			if got := cond.Evaluate(context); got != tt.want {
				t.Errorf("Evaluate(%s %v) = %v, want %v", tt.operator, tt.value, got, tt.want)
			}
		})
	}
}

func TestCondition_MissingFieldFailsClosed(t *testing.T) {
	cond := Condition{Field: "overall_score", Operator: OpLessEqual, Value: 3.0}

	if cond.Evaluate(map[string]any{}) {
		t.Error("Expected missing field to fail the clause")
	}

	if cond.Evaluate(map[string]any{"overall_score": nil}) {
		t.Error("Expected nil field to fail the clause")
	}
}

func TestCondition_NonNumericFailsNumericOperator(t *testing.T) {
	cond := Condition{Field: "risk_level", Operator: OpLessThan, Value: 3.0}

	if cond.Evaluate(map[string]any{"risk_level": "high"}) {
		t.Error("Expected non-numeric value to fail numeric comparison")
	}
}

func TestCondition_Contains(t *testing.T) {
	cond := Condition{Field: "responses.q1", Operator: OpContains, Value: "tired"}

	context := map[string]any{
		"responses": map[string]any{"q1": "I feel very TIRED today"},
	}
	if !cond.Evaluate(context) {
		t.Error("Expected case-insensitive substring to match")
	}

	context["responses"] = map[string]any{"q1": "I feel great"}
	if cond.Evaluate(context) {
		t.Error("Expected non-matching response to fail")
	}
}

func TestCondition_In(t *testing.T) {
	cond := Condition{Field: "risk_level", Operator: OpIn, Value: []any{"high", "critical"}}

	if !cond.Evaluate(map[string]any{"risk_level": "high"}) {
		t.Error("Expected membership to match")
	}

	if cond.Evaluate(map[string]any{"risk_level": "low"}) {
		t.Error("Expected non-member to fail")
	}
}

func TestCondition_UnknownOperator(t *testing.T) {
	cond := Condition{Field: "risk_level", Operator: "~=", Value: "high"}

	if cond.Evaluate(map[string]any{"risk_level": "high"}) {
		t.Error("Expected unknown operator to evaluate false")
	}
}

func TestEvaluateAll_Logic(t *testing.T) {
	context := map[string]any{"a": 1.0, "b": 2.0}
	conds := []Condition{
		{Field: "a", Operator: OpEqual, Value: 1.0},
		{Field: "b", Operator: OpEqual, Value: 99.0},
	}

	if EvaluateAll(conds, "and", context) {
		t.Error("Expected AND with one failing clause to be false")
	}

	if !EvaluateAll(conds, "or", context) {
		t.Error("Expected OR with one passing clause to be true")
	}

	if !EvaluateAll(nil, "and", context) {
		t.Error("Expected empty condition set to be vacuously true")
	}
}

func TestLookupPath_Nested(t *testing.T) {
	data := map[string]any{
		"responses": map[string]any{"q1": "yes"},
	}

	value, ok := LookupPath(data, "responses.q1")
	if !ok || value != "yes" {
		t.Errorf("LookupPath(responses.q1) = %v, %v", value, ok)
	}

	if _, ok := LookupPath(data, "responses.q2"); ok {
		t.Error("Expected missing key to report not found")
	}
}
