// Package gateway provides local implementations of the outbound collaborator interfaces.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Console logs every outbound message instead of delivering it. Used in
// development and as the default wiring until a vendor gateway is injected.
type Console struct {
	logger *slog.Logger
}

func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger.With("module", "console_gateway")}
}

func (c *Console) output(kind string, attrs ...any) map[string]any {
	c.logger.Info("Outbound "+kind, attrs...)

	return map[string]any{
		"id":           kind + "-" + uuid.New().String()[:8],
		"delivered_at": time.Now().UTC().Format(time.RFC3339),
		"transport":    "console",
	}
}

func (c *Console) SendSMS(_ context.Context, to, body string) (map[string]any, error) {
	return c.output("sms", "to", to, "body", body), nil
}

func (c *Console) SendWhatsApp(_ context.Context, to, body string) (map[string]any, error) {
	return c.output("whatsapp", "to", to, "body", body), nil
}

func (c *Console) PlaceCall(_ context.Context, to, script string) (map[string]any, error) {
	return c.output("call", "to", to, "script", script), nil
}

func (c *Console) Send(_ context.Context, to, subject, _ string) (map[string]any, error) {
	return c.output("email", "to", to, "subject", subject), nil
}

func (c *Console) Write(_ context.Context, orgID, recipient, title, _ string) (map[string]any, error) {
	return c.output("notification", "org_id", orgID, "recipient", recipient, "title", title), nil
}

func (c *Console) CreateTask(_ context.Context, orgID, assignee, title, _ string) (map[string]any, error) {
	return c.output("task", "org_id", orgID, "assignee", assignee, "title", title), nil
}

func (c *Console) AssignResource(_ context.Context, orgID, learner, resourceID string) (map[string]any, error) {
	return c.output("resource", "org_id", orgID, "learner", learner, "resource_id", resourceID), nil
}
