package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/tierlink/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const visitTopic = "link.visited"

type visitEvent struct {
	Short  string `json:"short"`
	Visits uint64 `json:"visits"`
}

type mockSubscriber struct {
	msgChan      chan *message.Message
	subscribeErr error
	topics       []string
	mu           sync.Mutex
	closed       bool
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{
		msgChan: make(chan *message.Message, 10),
	}
}

func (m *mockSubscriber) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics = append(m.topics, topic)

	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}

	return m.msgChan, nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.msgChan)
	}

	return nil
}

func visitMessage(t *testing.T, event visitEvent) *message.Message {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return message.NewMessage(uuid.NewString(), payload)
}

// outcome waits until msg is acked or nacked.
func outcome(t *testing.T, msg *message.Message) string {
	t.Helper()

	select {
	case <-msg.Acked():
		return "ack"
	case <-msg.Nacked():
		return "nack"
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ack or nack")

		return ""
	}
}

func startConsumer(t *testing.T, sub *mockSubscriber, handle messaging.Handler[visitEvent]) *messaging.Consumer[visitEvent] {
	t.Helper()

	consumer := messaging.NewConsumer(sub, visitTopic, handle, zap.NewNop())
	require.NoError(t, consumer.Start(context.Background()))
	t.Cleanup(func() { _ = consumer.Shutdown() })

	return consumer
}

func TestConsumer_Start(t *testing.T) {
	t.Run("subscribes to its topic", func(t *testing.T) {
		sub := newMockSubscriber()

		consumer := startConsumer(t, sub, func(context.Context, *visitEvent) error { return nil })

		assert.Equal(t, visitTopic, consumer.Topic())
		assert.Equal(t, []string{visitTopic}, sub.topics)
	})

	t.Run("returns error when subscribe fails and still shuts down", func(t *testing.T) {
		sub := &mockSubscriber{subscribeErr: errors.New("subscribe error")}
		consumer := messaging.NewConsumer(sub, visitTopic, func(context.Context, *visitEvent) error { return nil }, zap.NewNop())

		err := consumer.Start(context.Background())

		require.ErrorContains(t, err, "subscribe error")
		assert.NoError(t, consumer.Shutdown())
	})
}

func TestConsumer_Messages(t *testing.T) {
	t.Run("acks and passes the decoded event to the handler", func(t *testing.T) {
		sub := newMockSubscriber()
		received := make(chan *visitEvent, 1)

		startConsumer(t, sub, func(_ context.Context, event *visitEvent) error {
			received <- event

			return nil
		})

		msg := visitMessage(t, visitEvent{Short: "0123456789abcdef", Visits: 4})
		sub.msgChan <- msg

		assert.Equal(t, "ack", outcome(t, msg))

		event := <-received
		assert.Equal(t, "0123456789abcdef", event.Short)
		assert.Equal(t, uint64(4), event.Visits)
	})

	t.Run("drops undecodable payloads", func(t *testing.T) {
		sub := newMockSubscriber()
		calls := 0

		startConsumer(t, sub, func(context.Context, *visitEvent) error {
			calls++

			return nil
		})

		msg := message.NewMessage(uuid.NewString(), []byte("not json"))
		sub.msgChan <- msg

		assert.Equal(t, "ack", outcome(t, msg))
		assert.Zero(t, calls)
	})

	t.Run("nacks when the handler fails", func(t *testing.T) {
		sub := newMockSubscriber()

		startConsumer(t, sub, func(context.Context, *visitEvent) error {
			return errors.New("handler error")
		})

		msg := visitMessage(t, visitEvent{Short: "0123456789abcdef"})
		sub.msgChan <- msg

		assert.Equal(t, "nack", outcome(t, msg))
	})

	t.Run("processes messages in order", func(t *testing.T) {
		sub := newMockSubscriber()

		var (
			mu   sync.Mutex
			seen []uint64
		)

		startConsumer(t, sub, func(_ context.Context, event *visitEvent) error {
			mu.Lock()
			defer mu.Unlock()

			seen = append(seen, event.Visits)

			return nil
		})

		msgs := make([]*message.Message, 0, 3)
		for i := range 3 {
			msg := visitMessage(t, visitEvent{Short: "0123456789abcdef", Visits: uint64(i + 1)})
			msgs = append(msgs, msg)
			sub.msgChan <- msg
		}

		for _, msg := range msgs {
			require.Equal(t, "ack", outcome(t, msg))
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []uint64{1, 2, 3}, seen)
	})
}

func TestConsumer_Shutdown(t *testing.T) {
	t.Run("returns once the subscription channel closes", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(sub, visitTopic, func(context.Context, *visitEvent) error { return nil }, zap.NewNop())
		require.NoError(t, consumer.Start(context.Background()))

		require.NoError(t, sub.Close())

		assert.NoError(t, consumer.Shutdown())
	})

	t.Run("stops when the parent context is cancelled", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(sub, visitTopic, func(context.Context, *visitEvent) error { return nil }, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, consumer.Start(ctx))
		cancel()

		assert.NoError(t, consumer.Shutdown())
	})

	t.Run("returns immediately when never started", func(t *testing.T) {
		consumer := messaging.NewConsumer(newMockSubscriber(), visitTopic, func(context.Context, *visitEvent) error { return nil }, zap.NewNop())

		done := make(chan error, 1)
		go func() { done <- consumer.Shutdown() }()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("shutdown blocked on a consumer that was never started")
		}
	})
}
