package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/common/events"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// RefundService 환불 시 이행 결과를 되돌리는 서비스.
// 수강 등록/수료증 삭제와 인보이스 상태 전환은 모두 멱등이다.
type RefundService interface {
	Reverse(ctx context.Context, tx repository.Tx, order *domain.Order, payment *domain.Payment) error
}

type refundService struct {
	enrollmentRepo  repository.EnrollmentRepository
	certificateRepo repository.CertificateRepository
	invoiceRepo     repository.InvoiceRepository
	outboxRepo      repository.OutboxRepository
	logger          *zap.Logger
}

// NewRefundService 환불 서비스 생성
func NewRefundService(
	enrollmentRepo repository.EnrollmentRepository,
	certificateRepo repository.CertificateRepository,
	invoiceRepo repository.InvoiceRepository,
	outboxRepo repository.OutboxRepository,
	logger *zap.Logger,
) RefundService {
	return &refundService{
		enrollmentRepo:  enrollmentRepo,
		certificateRepo: certificateRepo,
		invoiceRepo:     invoiceRepo,
		outboxRepo:      outboxRepo,
		logger:          logger,
	}
}

// Reverse 주문의 모든 항목에 대해 수강 등록과 수료증을 삭제하고 인보이스를 환불 상태로 전환한다.
func (s *refundService) Reverse(ctx context.Context, tx repository.Tx, order *domain.Order, payment *domain.Payment) error {
	for _, item := range order.Items {
		deleted, err := s.enrollmentRepo.DeleteTx(ctx, tx, order.BuyerID, item.CourseID)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to delete enrollment", err)
		}
		if !deleted {
			s.logger.Info("enrollment already absent, skipping",
				zap.Int64("buyerId", order.BuyerID),
				zap.Int64("courseId", item.CourseID))
		}

		if _, err := s.certificateRepo.DeleteTx(ctx, tx, order.BuyerID, item.CourseID); err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to delete certificate", err)
		}
	}

	updated, err := s.invoiceRepo.UpdateStatusTx(ctx, tx, order.ID, domain.InvoiceStatusRefunded)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update invoice status", err)
	}
	if !updated {
		s.logger.Info("invoice already refunded or missing", zap.Int64("orderId", order.ID))
	}

	now := time.Now()
	correlationID := uuid.New().String()

	revokedEvt := events.EnrollmentRevokedEvent{
		BaseEvent: events.BaseEvent{
			EventID:       uuid.New().String(),
			EventType:     events.EventEnrollmentRevoked,
			SchemaVersion: 1,
			OccurredAt:    now,
			CorrelationID: correlationID,
		},
		BuyerID:   order.BuyerID,
		OrderID:   order.ID,
		CourseIDs: order.CourseIDs(),
	}
	if err := s.insertOutbox(ctx, tx, "order", order.ID, revokedEvt.EventType, revokedEvt, now); err != nil {
		return err
	}

	refundedEvt := events.PaymentRefundedEvent{
		BaseEvent: events.BaseEvent{
			EventID:       uuid.New().String(),
			EventType:     events.EventPaymentRefunded,
			SchemaVersion: 1,
			OccurredAt:    now,
			CorrelationID: correlationID,
		},
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
	}
	if err := s.insertOutbox(ctx, tx, "payment", payment.ID, refundedEvt.EventType, refundedEvt, now); err != nil {
		return err
	}

	s.logger.Info("fulfillment reversed",
		zap.Int64("orderId", order.ID),
		zap.Int64("paymentId", payment.ID))

	return nil
}

func (s *refundService) insertOutbox(
	ctx context.Context,
	tx repository.Tx,
	aggregateType string,
	aggregateID int64,
	eventType events.EventType,
	event interface{},
	now time.Time,
) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerializationError, "failed to marshal event", err)
	}

	outboxEvent := &repository.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       payload,
		Status:        "PENDING",
		CreatedAt:     now,
	}

	if err := s.outboxRepo.InsertTx(ctx, tx, outboxEvent); err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to insert outbox event", err)
	}

	return nil
}
