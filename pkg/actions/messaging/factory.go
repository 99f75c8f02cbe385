package messaging

import (
	"github.com/pulsehq/pulse-workflows/pkg/protocol"
)

// Action type ids as they appear in action node configs.
const (
	ActionTypeSendSMS      = "send_sms"
	ActionTypeSendWhatsApp = "send_whatsapp"
	ActionTypeMakeCall     = "make_call"
)

type factory struct {
	id          string
	name        string
	description string
	channel     Channel
	gateway     protocol.MessageGateway
}

func (f *factory) ID() string          { return f.id }
func (f *factory) Name() string        { return f.name }
func (f *factory) Description() string { return f.description }

func (f *factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(f.channel, f.gateway, config)
}

func (f *factory) Schema() map[string]any {
	required := []string{"to", "body"}
	if f.channel == ChannelCall {
		required = []string{"to"}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient phone number. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Message body. Supports templating.",
			},
			"script": map[string]any{
				"type":        "string",
				"description": "Call script, used by make_call instead of body.",
			},
		},
		"required": required,
	}
}

// NewSMSFactory creates the send_sms action factory.
func NewSMSFactory(gateway protocol.MessageGateway) protocol.ActionFactory {
	return &factory{
		id:          ActionTypeSendSMS,
		name:        "Send SMS",
		description: "Sends an SMS through the configured messaging gateway.",
		channel:     ChannelSMS,
		gateway:     gateway,
	}
}

// NewWhatsAppFactory creates the send_whatsapp action factory.
func NewWhatsAppFactory(gateway protocol.MessageGateway) protocol.ActionFactory {
	return &factory{
		id:          ActionTypeSendWhatsApp,
		name:        "Send WhatsApp",
		description: "Sends a WhatsApp message through the configured messaging gateway.",
		channel:     ChannelWhatsApp,
		gateway:     gateway,
	}
}

// NewCallFactory creates the make_call action factory.
func NewCallFactory(gateway protocol.MessageGateway) protocol.ActionFactory {
	return &factory{
		id:          ActionTypeMakeCall,
		name:        "Make Call",
		description: "Places an automated voice call through the configured gateway.",
		channel:     ChannelCall,
		gateway:     gateway,
	}
}
