package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable is a topic consumer with a start/shutdown lifecycle.
type Runnable interface {
	Topic() string
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs the consumers sharing one subscriber and closes the
// subscriber once they stop.
type ConsumerGroup struct {
	consumers  []Runnable
	subscriber message.Subscriber
	logger     *zap.Logger
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer to the group.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Topics returns the topics of the registered consumers.
func (g *ConsumerGroup) Topics() []string {
	topics := make([]string, 0, len(g.consumers))
	for _, consumer := range g.consumers {
		topics = append(topics, consumer.Topic())
	}

	return topics
}

// Start starts every consumer. When one fails, those already started are
// shut down in reverse order.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.consumers[j].Shutdown()
			}

			return fmt.Errorf("start consumer for %s: %w", consumer.Topic(), err)
		}
	}

	g.logger.Info("consumer group started", zap.Strings("topics", g.Topics()))

	return nil
}

// Shutdown stops every consumer, then closes the subscriber.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group")

	errs := make([]error, 0, len(g.consumers)+1)

	for _, consumer := range g.consumers {
		if err := consumer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown consumer for %s: %w", consumer.Topic(), err))
		}
	}

	if err := g.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errors.Join(errs...)
}
