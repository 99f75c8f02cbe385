package template

import (
	"testing"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

func testContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		OrgID:       "org-1",
		TriggerData: map[string]any{
			"risk_level":     "high",
			"guardian_phone": "+15551234567",
			"overall_score":  float64(2),
		},
		Context: map[string]any{"counselor": "j.doe"},
	}
}

func TestRenderWithContext_TriggerData(t *testing.T) {
	result, err := RenderWithContext("{{.trigger_data.guardian_phone}}", testContext())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if result != "+15551234567" {
		t.Errorf("Expected phone number, got %v", result)
	}
}

func TestRenderWithContext_NumberCoercion(t *testing.T) {
	result, err := RenderWithContext("{{.trigger_data.overall_score}}", testContext())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if result != float64(2) {
		t.Errorf("Expected numeric 2, got %T %v", result, result)
	}
}

func TestRender_NumberCoercionRequiresRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  any
	}{
		{"plain integer", "42", float64(42)},
		{"decimal", "3.5", float64(3.5)},
		{"signed phone stays string", "+15550001111", "+15550001111"},
		{"exponent form stays string", "1e5", "1e5"},
		{"leading zeros stay string", "007", "007"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Render(tc.input, nil)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}

			if result != tc.want {
				t.Errorf("Expected %T %v, got %T %v", tc.want, tc.want, result, result)
			}
		})
	}
}

func TestRenderConfig_OnlyStringsRendered(t *testing.T) {
	config := map[string]any{
		"to":      "{{.trigger_data.guardian_phone}}",
		"retries": 3,
	}

	rendered, err := RenderConfig(config, testContext())
	if err != nil {
		t.Fatalf("RenderConfig failed: %v", err)
	}

	if rendered["to"] != "+15551234567" {
		t.Errorf("Expected rendered phone, got %v", rendered["to"])
	}

	if rendered["retries"] != 3 {
		t.Errorf("Expected non-string value untouched, got %v", rendered["retries"])
	}
}

func TestRender_InvalidTemplate(t *testing.T) {
	if _, err := RenderWithContext("{{.broken", testContext()); err == nil {
		t.Error("Expected parse error for malformed template")
	}
}
