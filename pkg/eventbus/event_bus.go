// Package eventbus provides event-driven communication infrastructure for workflow orchestration.
package eventbus

import (
	"context"

	"github.com/pulsehq/pulse-workflows/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// TriggerEventHandler processes one inbound domain event.
type TriggerEventHandler func(ctx context.Context, event *events.TriggerEvent) error

// TriggerEventBus carries inbound domain events on their own topic, apart
// from the workflow lifecycle traffic.
type TriggerEventBus interface {
	PublishTriggerEvent(ctx context.Context, event *events.TriggerEvent) error
	HandleTriggerEvents(handler TriggerEventHandler) error
	SubscribeToTriggerEvents(ctx context.Context) error
	Close() error
}
