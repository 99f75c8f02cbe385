package messaging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

type recordingGateway struct {
	channel string
	to      string
	body    string
}

func (g *recordingGateway) SendSMS(_ context.Context, to, body string) (map[string]any, error) {
	g.channel, g.to, g.body = "sms", to, body

	return map[string]any{"message_id": "m-1"}, nil
}

func (g *recordingGateway) SendWhatsApp(_ context.Context, to, body string) (map[string]any, error) {
	g.channel, g.to, g.body = "whatsapp", to, body

	return map[string]any{"message_id": "m-2"}, nil
}

func (g *recordingGateway) PlaceCall(_ context.Context, to, script string) (map[string]any, error) {
	g.channel, g.to, g.body = "call", to, script

	return map[string]any{"call_id": "c-1"}, nil
}

func TestNewAction_MissingRecipient(t *testing.T) {
	if _, err := NewAction(ChannelSMS, &recordingGateway{}, map[string]any{"body": "hi"}); err == nil {
		t.Fatal("Expected error when 'to' is missing")
	}
}

func TestAction_Execute_RendersTemplates(t *testing.T) {
	gateway := &recordingGateway{}

	action, err := NewAction(ChannelSMS, gateway, map[string]any{
		"to":   "{{.trigger_data.guardian_phone}}",
		"body": "Check-in flagged {{.trigger_data.risk_level}} risk",
	})
	if err != nil {
		t.Fatalf("Failed to create action: %v", err)
	}

	executionCtx := models.ExecutionContext{
		ExecutionID: "exec-1",
		TriggerData: map[string]any{
			"guardian_phone": "+15550001111",
			"risk_level":     "high",
		},
	}

	output, err := action.Execute(context.Background(), executionCtx, slog.Default())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gateway.to != "+15550001111" {
		t.Errorf("Expected rendered recipient, got %s", gateway.to)
	}

	if gateway.body != "Check-in flagged high risk" {
		t.Errorf("Expected rendered body, got %s", gateway.body)
	}

	if output["message_id"] != "m-1" {
		t.Errorf("Expected gateway output passed through, got %v", output)
	}
}

func TestAction_Execute_CallUsesScript(t *testing.T) {
	gateway := &recordingGateway{}

	action, err := NewAction(ChannelCall, gateway, map[string]any{
		"to":     "+15550002222",
		"script": "Automated wellness check",
	})
	if err != nil {
		t.Fatalf("Failed to create action: %v", err)
	}

	if _, err := action.Execute(context.Background(), models.ExecutionContext{}, slog.Default()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gateway.channel != "call" || gateway.body != "Automated wellness check" {
		t.Errorf("Expected call with script, got %s %q", gateway.channel, gateway.body)
	}
}
