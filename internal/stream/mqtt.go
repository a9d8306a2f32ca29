package stream

import (
	"context"
	"encoding/json"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/mqtt"
)

// Publisher is the subset of *mqtt.Client the publisher needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Subscriber is the subset of *mqtt.Client the subscriber needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTPublisher is a Sink that publishes each record on its device topic.
type MQTTPublisher struct {
	client Publisher
	topics mqtt.Topics
}

// NewMQTTPublisher creates a publishing sink.
func NewMQTTPublisher(client Publisher) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// Deliver publishes r. A publish failure stops the poller's batch.
func (p *MQTTPublisher) Deliver(_ context.Context, r Record) error {
	return p.client.PublishJSON(p.topics.DeviceChange(r.HubID, r.EndpointID), r)
}

// SubscribeMQTT feeds every device-change message to handle. Messages that
// do not decode to a valid Record are dropped and reported to onError.
func SubscribeMQTT(ctx context.Context, client Subscriber, qos byte, handle func(context.Context, Record), onError func(error)) error {
	return client.Subscribe(mqtt.Topics{}.AllDeviceChanges(), qos, func(_ string, payload []byte) error {
		var r Record
		if err := json.Unmarshal(payload, &r); err != nil {
			onError(err)
			return nil
		}
		if err := r.Validate(); err != nil {
			onError(err)
			return nil
		}
		handle(ctx, r)
		return nil
	})
}
