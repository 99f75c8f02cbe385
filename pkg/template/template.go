// Package template provides templating functionality for dynamic action configuration.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// RenderWithContext renders a template expression against the data an
// action node can see: the trigger snapshot, the accumulated context, and
// prior node results.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"trigger_data": executionCtx.TriggerData,
		"context":      executionCtx.Context,
		"node_results": executionCtx.NodeResults,
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
			"org_id":      executionCtx.OrgID,
		},
	}

	return Render(input, data)
}

// RenderConfig renders every string value of an action config in place,
// returning a new map. Non-string values pass through untouched.
func RenderConfig(config map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		str, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		out, err := RenderWithContext(str, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render config key %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("action").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Try to parse as JSON if it looks like JSON
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	// Only treat the output as a number when the numeric form reproduces
	// the rendered text exactly. Values like phone numbers parse as floats
	// but must stay strings.
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		if strconv.FormatFloat(num, 'f', -1, 64) == result {
			return num, nil
		}
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
