package protocol

import "context"

// Collaborator gateways behind the outbound actions. These stay interfaces:
// the concrete SMS/voice/WhatsApp vendor, mail transport and in-app
// notification store live outside this module and are injected at startup.

// MessageGateway sends SMS, WhatsApp messages and places calls.
type MessageGateway interface {
	SendSMS(ctx context.Context, to, body string) (map[string]any, error)
	SendWhatsApp(ctx context.Context, to, body string) (map[string]any, error)
	PlaceCall(ctx context.Context, to, script string) (map[string]any, error)
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (map[string]any, error)
}

// NotificationWriter writes an in-app notification for a recipient.
type NotificationWriter interface {
	Write(ctx context.Context, orgID, recipient, title, body string) (map[string]any, error)
}

// TaskWriter creates follow-up tasks and assigns learning resources.
type TaskWriter interface {
	CreateTask(ctx context.Context, orgID, assignee, title, description string) (map[string]any, error)
	AssignResource(ctx context.Context, orgID, learner, resourceID string) (map[string]any, error)
}

// WorkflowDispatcher lets the trigger_workflow action fire another
// workflow without importing the engine.
type WorkflowDispatcher interface {
	DispatchWorkflow(ctx context.Context, workflowID, orgID string, triggerData map[string]any, depth int) error
}
