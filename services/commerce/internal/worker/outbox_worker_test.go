package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/course-commerce/common/logger"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository/memory"
)

type capturedMessage struct {
	topic string
	key   string
}

type fakePublisher struct {
	messages []capturedMessage
	fail     bool
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	if p.fail {
		return fmt.Errorf("broker unavailable")
	}
	p.messages = append(p.messages, capturedMessage{topic: topic, key: key})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func insertEvent(t *testing.T, store *memory.Store, aggregateID int64, eventType string) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx repository.Tx) error {
		return store.Outbox().InsertTx(context.Background(), tx, &repository.OutboxEvent{
			AggregateType: "order",
			AggregateID:   aggregateID,
			EventType:     eventType,
			Payload:       json.RawMessage(`{"orderId":1}`),
			Status:        "PENDING",
			CreatedAt:     time.Now(),
		})
	})
	require.NoError(t, err)
}

func TestOutboxWorkerPublishesAndMarksSent(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakePublisher{}
	w := NewOutboxWorker(store.Outbox(), publisher, time.Second, logger.NewTestLogger())

	insertEvent(t, store, 1, "enrollment.completed.v1")
	insertEvent(t, store, 1, "invoice.issued.v1")

	require.NoError(t, w.process(context.Background()))

	require.Len(t, publisher.messages, 2)
	assert.Equal(t, "enrollment.completed.v1", publisher.messages[0].topic)
	assert.Equal(t, "1", publisher.messages[0].key)

	pending, err := store.Outbox().FindPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxWorkerKeepsFailedEventsPending(t *testing.T) {
	store := memory.NewStore()
	publisher := &fakePublisher{fail: true}
	w := NewOutboxWorker(store.Outbox(), publisher, time.Second, logger.NewTestLogger())

	insertEvent(t, store, 2, "enrollment.completed.v1")

	require.NoError(t, w.process(context.Background()))

	pending, err := store.Outbox().FindPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// 브로커가 복구되면 다음 주기에 발행된다
	publisher.fail = false
	require.NoError(t, w.process(context.Background()))
	assert.Len(t, publisher.messages, 1)
}
