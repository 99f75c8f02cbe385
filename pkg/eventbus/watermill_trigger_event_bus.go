package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pulsehq/pulse-workflows/pkg/events"
)

// WatermillTriggerEventBus carries inbound domain events over a watermill
// publisher/subscriber pair on the trigger topic.
type WatermillTriggerEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handler    TriggerEventHandler
}

func NewWatermillTriggerEventBus(pub message.Publisher, sub message.Subscriber) TriggerEventBus {
	return &WatermillTriggerEventBus{
		publisher:  pub,
		subscriber: sub,
	}
}

func (eb *WatermillTriggerEventBus) PublishTriggerEvent(ctx context.Context, event *events.TriggerEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, event.OrgID)
	msg.Metadata.Set(events.EventTypeMetadataKey, event.EventType)

	return eb.publisher.Publish(events.TriggerTopic, msg)
}

func (eb *WatermillTriggerEventBus) HandleTriggerEvents(handler TriggerEventHandler) error {
	eb.handler = handler

	return nil
}

func (eb *WatermillTriggerEventBus) SubscribeToTriggerEvents(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.TriggerTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			if eb.handler == nil {
				msg.Ack()

				continue
			}

			var event events.TriggerEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Nack()

				continue
			}

			if err := eb.handler(ctx, &event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillTriggerEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
