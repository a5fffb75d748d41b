package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Message metadata set on every published event.
const (
	MetadataTopic       = "topic"
	MetadataPublishedAt = "published_at"
)

// Publish publishes a typed event.
type Publish[T any] func(ctx context.Context, event *T) error

// NewPublishFunc creates a typed publish function for a specific topic.
// Events are JSON encoded.
func NewPublishFunc[T any](publisher message.Publisher, topic string) Publish[T] {
	return func(ctx context.Context, event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(MetadataTopic, topic)
		msg.Metadata.Set(MetadataPublishedAt, time.Now().UTC().Format(time.RFC3339Nano))
		msg.SetContext(ctx)

		return publisher.Publish(topic, msg)
	}
}

// NopPublish returns a publish function that drops every event.
func NopPublish[T any]() Publish[T] {
	return func(context.Context, *T) error { return nil }
}

// PublisherGroup owns the publisher shared by every typed publish function
// and closes it on shutdown.
type PublisherGroup struct {
	publisher message.Publisher
}

// NewPublisherGroup creates a new publisher group.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

// Publisher returns the underlying message publisher.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the underlying publisher.
func (g *PublisherGroup) Shutdown() error {
	return g.publisher.Close()
}
