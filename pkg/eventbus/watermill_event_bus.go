package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/stratumflow/stratum/pkg/events"
)

// WatermillEventBus routes core events over any watermill publisher and
// subscriber pair: gochannel in process, Kafka between processes.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event := emptyEvent(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

// emptyEvent returns a zero value of the concrete event for a type, or nil
// for unknown types.
func emptyEvent(eventType events.EventType) any {
	switch eventType {
	case events.InstanceStartedEvent:
		return &events.InstanceStarted{}
	case events.InstanceCompletedEvent:
		return &events.InstanceCompleted{}
	case events.InstanceFailedEvent:
		return &events.InstanceFailed{}
	case events.InstanceSuspendedEvent:
		return &events.InstanceSuspended{}
	case events.InstanceResumedEvent:
		return &events.InstanceResumed{}
	case events.InstanceCancelledEvent:
		return &events.InstanceCancelled{}
	case events.NodeFinishedEvent:
		return &events.NodeFinished{}
	case events.NodeFailedEvent:
		return &events.NodeFailed{}
	case events.ApprovalRequestedEvent:
		return &events.ApprovalRequested{}
	case events.ApprovalResolvedEvent:
		return &events.ApprovalResolved{}
	case events.TrustLevelChangedEvent:
		return &events.TrustLevelChanged{}
	case events.DeploymentPromotedEvent:
		return &events.DeploymentPromoted{}
	case events.DeploymentRolledBackEvent:
		return &events.DeploymentRolledBack{}
	case events.CompensationFinishedEvent:
		return &events.CompensationFinished{}
	default:
		return nil
	}
}
