package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a single comparison clause evaluated against a key-value
// context. Field is a dot-separated key path (e.g. "responses.q1").
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Comparison operators shared by trigger filters, condition nodes and
// branch conditions.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpLessThan     = "<"
	OpLessEqual    = "<="
	OpGreaterThan  = ">"
	OpGreaterEqual = ">="
	OpContains     = "contains"
	OpIn           = "in"
)

// Evaluate checks the condition against the given context. A missing field
// value fails the clause (fail-closed); an unknown operator fails it too.
func (c Condition) Evaluate(context map[string]any) bool {
	actual, ok := LookupPath(context, c.Field)
	if !ok || actual == nil {
		return false
	}

	return CompareValues(actual, c.Operator, c.Value)
}

// EvaluateAll applies AND/OR logic over a condition set. An empty set is
// vacuously true. Logic defaults to "and".
func EvaluateAll(conditions []Condition, logic string, context map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	if strings.EqualFold(logic, "or") {
		for _, cond := range conditions {
			if cond.Evaluate(context) {
				return true
			}
		}

		return false
	}

	for _, cond := range conditions {
		if !cond.Evaluate(context) {
			return false
		}
	}

	return true
}

// CompareValues applies a comparison operator to an actual and expected
// value. Numeric operators fail on non-numeric operands; contains is a
// case-insensitive substring check; in is list membership.
func CompareValues(actual any, operator string, expected any) bool {
	switch operator {
	case OpEqual:
		return looseEqual(actual, expected)
	case OpNotEqual:
		return !looseEqual(actual, expected)
	case OpLessThan, OpLessEqual, OpGreaterThan, OpGreaterEqual:
		left, lok := ToNumber(actual)
		right, rok := ToNumber(expected)

		if !lok || !rok {
			return false
		}

		switch operator {
		case OpLessThan:
			return left < right
		case OpLessEqual:
			return left <= right
		case OpGreaterThan:
			return left > right
		default:
			return left >= right
		}
	case OpContains:
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", actual)),
			strings.ToLower(fmt.Sprintf("%v", expected)),
		)
	case OpIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}

		for _, item := range list {
			if looseEqual(actual, item) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// looseEqual compares values numerically when both sides are numeric,
// otherwise by string form. JSON decoding turns every number into float64,
// so "3" and 3 and 3.0 compare equal.
func looseEqual(a, b any) bool {
	if left, lok := ToNumber(a); lok {
		if right, rok := ToNumber(b); rok {
			return left == right
		}
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// ToNumber coerces common scalar types to float64.
func ToNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// LookupPath resolves a dot-separated key path in a nested map.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current any = data

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
