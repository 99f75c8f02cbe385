// Package webhook provides the webhook HTTP action handler.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/template"
)

const ActionTypeWebhook = "webhook"

const defaultTimeoutSeconds = 30
const maxResponseBytes = 64 * 1024

// Action performs an HTTP request against an external endpoint. The URL,
// headers and body support templating against the execution context.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "webhook_action")

	req, err := a.buildRequest(ctx, executionCtx)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Calling webhook", "method", a.Method, "url", req.URL.String())

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		output["body"] = parsed
	} else {
		output["body"] = string(raw)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return output, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return output, nil
}

func (a *Action) buildRequest(ctx context.Context, executionCtx models.ExecutionContext) (*http.Request, error) {
	renderedURL, err := template.RenderWithContext(a.URL, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render url: %w", err)
	}

	var bodyReader io.Reader

	if a.Body != "" {
		rendered, err := template.RenderWithContext(a.Body, &executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render body: %w", err)
		}

		switch v := rendered.(type) {
		case string:
			bodyReader = strings.NewReader(v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode body: %w", err)
			}

			bodyReader = strings.NewReader(string(raw))
		}
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, fmt.Sprintf("%v", renderedURL), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if a.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderWithContext(value, &executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		req.Header.Set(key, fmt.Sprintf("%v", rendered))
	}

	return req, nil
}

type factory struct{}

func (f *factory) ID() string   { return ActionTypeWebhook }
func (f *factory) Name() string { return "Webhook" }

func (f *factory) Description() string {
	return "Calls an external HTTP endpoint with a templated payload."
}

func (f *factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":             map[string]any{"type": "string", "description": "Endpoint URL. Supports templating."},
			"method":          map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"headers":         map[string]any{"type": "object"},
			"body":            map[string]any{"type": "string", "description": "Request body. Supports templating."},
			"timeout_seconds": map[string]any{"type": "number"},
		},
		"required": []string{"url"},
	}
}

// NewFactory creates the webhook action factory.
func NewFactory() protocol.ActionFactory {
	return &factory{}
}
