package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kyungseok/course-commerce/common/messaging"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// OutboxWorker Outbox 패턴 워커.
// 이행 트랜잭션과 함께 커밋된 알림 이벤트를 주기적으로 긁어 Kafka로 발행한다.
// 발행은 at-least-once이며 컨슈머가 이벤트 ID로 중복을 제거한다.
type OutboxWorker struct {
	outboxRepo repository.OutboxRepository
	publisher  messaging.Publisher
	batchSize  int
	interval   time.Duration
	logger     *zap.Logger
}

// NewOutboxWorker Outbox 워커 생성
func NewOutboxWorker(
	outboxRepo repository.OutboxRepository,
	publisher messaging.Publisher,
	interval time.Duration,
	logger *zap.Logger,
) *OutboxWorker {
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		batchSize:  100,
		interval:   interval,
		logger:     logger,
	}
}

// Start 워커 시작 (ctx 취소 시까지 블로킹)
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if err := w.process(ctx); err != nil {
				w.logger.Error("failed to process outbox events", zap.Error(err))
			}
		}
	}
}

func (w *OutboxWorker) process(ctx context.Context) error {
	events, err := w.outboxRepo.FindPending(ctx, w.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	w.logger.Info("processing outbox events", zap.Int("count", len(events)))

	for _, event := range events {
		if err := w.publishEvent(ctx, event); err != nil {
			w.logger.Error("failed to publish event",
				zap.Int64("eventId", event.ID),
				zap.String("eventType", event.EventType),
				zap.Error(err))
			continue
		}

		if err := w.outboxRepo.MarkSent(ctx, event.ID); err != nil {
			w.logger.Error("failed to mark event as sent",
				zap.Int64("eventId", event.ID),
				zap.Error(err))
		}
	}

	return nil
}

func (w *OutboxWorker) publishEvent(ctx context.Context, event *repository.OutboxEvent) error {
	// 애그리게잇 ID를 파티션 키로 사용해 같은 주문의 이벤트 순서를 보존
	key := strconv.FormatInt(event.AggregateID, 10)
	return w.publisher.Publish(ctx, event.EventType, key, json.RawMessage(event.Payload))
}
