// Package notification provides the in_app_notification action handler.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/template"
)

const ActionTypeInAppNotification = "in_app_notification"

type Action struct {
	writer    protocol.NotificationWriter
	recipient string
	title     string
	body      string
}

func NewAction(writer protocol.NotificationWriter, config map[string]any) (*Action, error) {
	recipient, ok := config["recipient"].(string)
	if !ok || recipient == "" {
		return nil, errors.New("missing required field 'recipient'")
	}

	title, ok := config["title"].(string)
	if !ok || title == "" {
		return nil, errors.New("missing required field 'title'")
	}

	body, _ := config["body"].(string)

	return &Action{writer: writer, recipient: recipient, title: title, body: body}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	rendered, err := template.RenderConfig(map[string]any{
		"recipient": a.recipient,
		"title":     a.title,
		"body":      a.body,
	}, &executionCtx)
	if err != nil {
		return nil, err
	}

	recipient := fmt.Sprintf("%v", rendered["recipient"])

	logger.Info("Writing in-app notification", "recipient", recipient)

	return a.writer.Write(
		ctx,
		executionCtx.OrgID,
		recipient,
		fmt.Sprintf("%v", rendered["title"]),
		fmt.Sprintf("%v", rendered["body"]),
	)
}

type factory struct {
	writer protocol.NotificationWriter
}

func (f *factory) ID() string   { return ActionTypeInAppNotification }
func (f *factory) Name() string { return "In-App Notification" }

func (f *factory) Description() string {
	return "Writes a notification visible inside the dashboard."
}

func (f *factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.writer, config)
}

func (f *factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient": map[string]any{"type": "string", "description": "User id or role. Supports templating."},
			"title":     map[string]any{"type": "string"},
			"body":      map[string]any{"type": "string"},
		},
		"required": []string{"recipient", "title"},
	}
}

// NewFactory creates the in_app_notification action factory.
func NewFactory(writer protocol.NotificationWriter) protocol.ActionFactory {
	return &factory{writer: writer}
}
