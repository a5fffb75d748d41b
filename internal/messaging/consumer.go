package messaging

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Handler processes a single decoded event.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer feeds the events of one topic to a handler. A message is acked
// when the handler succeeds and nacked for redelivery when it fails.
// Payloads that do not decode are acked and dropped: redelivering them
// cannot succeed.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handle     Handler[T]
	logger     *zap.Logger
	stop       context.CancelFunc
	done       chan struct{}
}

// NewConsumer creates a consumer for events of type T on topic.
func NewConsumer[T any](subscriber message.Subscriber, topic string, handle Handler[T], logger *zap.Logger) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handle:     handle,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in a background goroutine.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.stop = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.stop()
		close(c.done)

		return err
	}

	go c.loop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) loop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.consume(ctx, msg)
		}
	}
}

func (c *Consumer[T]) consume(ctx context.Context, msg *message.Message) {
	logger := c.logger.With(zap.String("message_id", msg.UUID))

	event := new(T)
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		logger.Warn("dropping undecodable event", zap.Error(err))
		msg.Ack()

		return
	}

	if err := c.handle(ctx, event); err != nil {
		logger.Error("failed to handle event", zap.Error(err))
		msg.Nack()

		return
	}

	msg.Ack()
	logger.Debug("event handled", zap.String("published_at", msg.Metadata.Get(MetadataPublishedAt)))
}

// Shutdown stops the consumer and waits for the in-flight message.
func (c *Consumer[T]) Shutdown() error {
	if c.stop == nil {
		return nil
	}

	c.stop()
	<-c.done

	return nil
}
