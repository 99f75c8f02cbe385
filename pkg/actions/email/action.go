// Package email provides the send_email action handler.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/template"
)

const ActionTypeSendEmail = "send_email"

type Action struct {
	sender  protocol.EmailSender
	to      string
	subject string
	body    string
}

func NewAction(sender protocol.EmailSender, config map[string]any) (*Action, error) {
	to, ok := config["to"].(string)
	if !ok || to == "" {
		return nil, errors.New("missing required field 'to'")
	}

	subject, ok := config["subject"].(string)
	if !ok || subject == "" {
		return nil, errors.New("missing required field 'subject'")
	}

	body, _ := config["body"].(string)

	return &Action{sender: sender, to: to, subject: subject, body: body}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	rendered, err := template.RenderConfig(map[string]any{
		"to":      a.to,
		"subject": a.subject,
		"body":    a.body,
	}, &executionCtx)
	if err != nil {
		return nil, err
	}

	to := fmt.Sprintf("%v", rendered["to"])
	subject := fmt.Sprintf("%v", rendered["subject"])
	body := fmt.Sprintf("%v", rendered["body"])

	logger.Info("Sending email", "to", to, "subject", subject)

	return a.sender.Send(ctx, to, subject, body)
}

type factory struct {
	sender protocol.EmailSender
}

func (f *factory) ID() string   { return ActionTypeSendEmail }
func (f *factory) Name() string { return "Send Email" }

func (f *factory) Description() string {
	return "Sends an email through the configured mail transport."
}

func (f *factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.sender, config)
}

func (f *factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "string", "description": "Recipient address. Supports templating."},
			"subject": map[string]any{"type": "string", "description": "Subject line. Supports templating."},
			"body":    map[string]any{"type": "string", "description": "Email body. Supports templating."},
		},
		"required": []string{"to", "subject"},
	}
}

// NewFactory creates the send_email action factory.
func NewFactory(sender protocol.EmailSender) protocol.ActionFactory {
	return &factory{sender: sender}
}
