package analytics

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/tierlink/internal/messaging"
	"go.uber.org/zap"
)

// Store persists analytics events.
type Store interface {
	SaveLinkCreated(ctx context.Context, event *LinkCreatedEvent) error
	SaveLinkVisited(ctx context.Context, event *LinkVisitedEvent) error
}

// NewConsumers returns one consumer per analytics topic, all writing to store.
func NewConsumers(subscriber message.Subscriber, store Store, logger *zap.Logger) []messaging.Runnable {
	return []messaging.Runnable{
		messaging.NewConsumer[LinkCreatedEvent](subscriber, TopicLinkCreated, store.SaveLinkCreated, logger),
		messaging.NewConsumer[LinkVisitedEvent](subscriber, TopicLinkVisited, store.SaveLinkVisited, logger),
	}
}
