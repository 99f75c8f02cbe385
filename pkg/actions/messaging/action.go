// Package messaging provides the SMS, WhatsApp and voice call action handlers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsehq/pulse-workflows/pkg/models"
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
	"github.com/pulsehq/pulse-workflows/pkg/template"
)

// Channel identifies which gateway call an action performs.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelCall     Channel = "call"
)

// Action sends one message through the injected gateway. The `to` and
// `body` config fields support templating against the execution context.
type Action struct {
	channel Channel
	gateway protocol.MessageGateway
	to      string
	body    string
}

func NewAction(channel Channel, gateway protocol.MessageGateway, config map[string]any) (*Action, error) {
	to, ok := config["to"].(string)
	if !ok || to == "" {
		return nil, errors.New("missing required field 'to'")
	}

	body, _ := config["body"].(string)
	if body == "" && channel != ChannelCall {
		return nil, errors.New("missing required field 'body'")
	}

	if script, ok := config["script"].(string); ok && channel == ChannelCall {
		body = script
	}

	return &Action{
		channel: channel,
		gateway: gateway,
		to:      to,
		body:    body,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	to, err := template.RenderWithContext(a.to, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render recipient: %w", err)
	}

	body, err := template.RenderWithContext(a.body, &executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	toStr := fmt.Sprintf("%v", to)
	bodyStr := fmt.Sprintf("%v", body)

	logger.Info("Dispatching message", "channel", a.channel, "to", toStr)

	switch a.channel {
	case ChannelSMS:
		return a.gateway.SendSMS(ctx, toStr, bodyStr)
	case ChannelWhatsApp:
		return a.gateway.SendWhatsApp(ctx, toStr, bodyStr)
	case ChannelCall:
		return a.gateway.PlaceCall(ctx, toStr, bodyStr)
	default:
		return nil, fmt.Errorf("unknown messaging channel %q", a.channel)
	}
}
