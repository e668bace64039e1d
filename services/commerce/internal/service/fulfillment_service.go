package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/common/events"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// FulfillmentService 결제 완료 후 수강 등록/수료증/인보이스 이행 서비스.
// Fulfill은 호출자의 트랜잭션 안에서 실행되며, 일부만 반영된 상태는 관측될 수 없다.
type FulfillmentService interface {
	Fulfill(ctx context.Context, tx repository.Tx, order *domain.Order, payment *domain.Payment) error
	EnrollFree(ctx context.Context, buyerID int64, course *domain.Course) (*domain.Enrollment, error)
}

type fulfillmentService struct {
	txm             repository.TxManager
	courseRepo      repository.CourseRepository
	enrollmentRepo  repository.EnrollmentRepository
	certificateRepo repository.CertificateRepository
	invoiceRepo     repository.InvoiceRepository
	outboxRepo      repository.OutboxRepository
	logger          *zap.Logger
}

// NewFulfillmentService 이행 서비스 생성
func NewFulfillmentService(
	txm repository.TxManager,
	courseRepo repository.CourseRepository,
	enrollmentRepo repository.EnrollmentRepository,
	certificateRepo repository.CertificateRepository,
	invoiceRepo repository.InvoiceRepository,
	outboxRepo repository.OutboxRepository,
	logger *zap.Logger,
) FulfillmentService {
	return &fulfillmentService{
		txm:             txm,
		courseRepo:      courseRepo,
		enrollmentRepo:  enrollmentRepo,
		certificateRepo: certificateRepo,
		invoiceRepo:     invoiceRepo,
		outboxRepo:      outboxRepo,
		logger:          logger,
	}
}

// Fulfill 주문의 모든 항목에 대해 수강 등록과 수료증을 생성하고 인보이스를 발행한다.
// 이미 존재하는 수강 등록/수료증은 건너뛴다 (중복 개시 경쟁에 대한 멱등 처리).
func (s *fulfillmentService) Fulfill(ctx context.Context, tx repository.Tx, order *domain.Order, payment *domain.Payment) error {
	courses, err := s.courseRepo.FindByIDs(ctx, order.CourseIDs())
	if err != nil {
		return errors.Wrap(errors.ErrCodeFulfillment, "failed to load courses", err)
	}

	courseByID := make(map[int64]*domain.Course, len(courses))
	for _, course := range courses {
		courseByID[course.ID] = course
	}

	now := time.Now()

	for _, item := range order.Items {
		enrollment := &domain.Enrollment{
			BuyerID:    order.BuyerID,
			CourseID:   item.CourseID,
			PricePaid:  item.Net(),
			Status:     domain.EnrollmentStatusActive,
			EnrolledAt: now,
		}
		if payment != nil {
			paymentID := payment.ID
			enrollment.PaymentID = &paymentID
		}

		if err := s.enrollmentRepo.CreateTx(ctx, tx, enrollment); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				s.logger.Info("enrollment already exists, skipping",
					zap.Int64("buyerId", order.BuyerID),
					zap.Int64("courseId", item.CourseID))
			} else {
				return errors.Wrap(errors.ErrCodeFulfillment, "failed to create enrollment", err)
			}
		}

		course, ok := courseByID[item.CourseID]
		if ok && course.HasCertificate {
			if err := s.issueCertificate(ctx, tx, order.BuyerID, item.CourseID, now); err != nil {
				return err
			}
		}
	}

	invoice := domain.NewInvoice(order, now)
	if err := s.invoiceRepo.CreateTx(ctx, tx, invoice); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("invoice already issued, skipping", zap.Int64("orderId", order.ID))
		} else {
			return errors.Wrap(errors.ErrCodeFulfillment, "failed to create invoice", err)
		}
	}

	if err := s.publishFulfilled(ctx, tx, order, payment, invoice, now); err != nil {
		return err
	}

	s.logger.Info("order fulfilled",
		zap.Int64("orderId", order.ID),
		zap.Int64("buyerId", order.BuyerID),
		zap.Int("courses", len(order.Items)))

	return nil
}

func (s *fulfillmentService) issueCertificate(ctx context.Context, tx repository.Tx, buyerID, courseID int64, now time.Time) error {
	certificate := &domain.Certificate{
		BuyerID:  buyerID,
		CourseID: courseID,
		IssuedAt: now,
	}

	if err := s.certificateRepo.CreateTx(ctx, tx, certificate); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			s.logger.Info("certificate already issued, skipping",
				zap.Int64("buyerId", buyerID),
				zap.Int64("courseId", courseID))
			return nil
		}
		return errors.Wrap(errors.ErrCodeFulfillment, "failed to create certificate", err)
	}

	return nil
}

func (s *fulfillmentService) publishFulfilled(
	ctx context.Context,
	tx repository.Tx,
	order *domain.Order,
	payment *domain.Payment,
	invoice *domain.Invoice,
	now time.Time,
) error {
	correlationID := uuid.New().String()

	enrolledEvt := events.EnrollmentCompletedEvent{
		BaseEvent: events.BaseEvent{
			EventID:       uuid.New().String(),
			EventType:     events.EventEnrollmentCompleted,
			SchemaVersion: 1,
			OccurredAt:    now,
			CorrelationID: correlationID,
		},
		BuyerID:   order.BuyerID,
		OrderID:   order.ID,
		CourseIDs: order.CourseIDs(),
		Amount:    order.FinalAmount,
	}
	if err := s.insertOutbox(ctx, tx, "order", order.ID, enrolledEvt.EventType, enrolledEvt, now); err != nil {
		return err
	}

	if payment != nil {
		paymentEvt := events.PaymentCompletedEvent{
			BaseEvent: events.BaseEvent{
				EventID:       uuid.New().String(),
				EventType:     events.EventPaymentCompleted,
				SchemaVersion: 1,
				OccurredAt:    now,
				CorrelationID: correlationID,
			},
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			Method:    string(payment.Method),
		}
		if err := s.insertOutbox(ctx, tx, "payment", payment.ID, paymentEvt.EventType, paymentEvt, now); err != nil {
			return err
		}
	}

	invoiceEvt := events.InvoiceIssuedEvent{
		BaseEvent: events.BaseEvent{
			EventID:       uuid.New().String(),
			EventType:     events.EventInvoiceIssued,
			SchemaVersion: 1,
			OccurredAt:    now,
			CorrelationID: correlationID,
		},
		OrderID:     order.ID,
		InvoiceID:   invoice.ID,
		FinalAmount: invoice.FinalAmount,
		DueDate:     invoice.DueDate,
	}
	return s.insertOutbox(ctx, tx, "invoice", invoice.ID, invoiceEvt.EventType, invoiceEvt, now)
}

func (s *fulfillmentService) insertOutbox(
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

// EnrollFree 무료 강의 등록 (주문/결제 없이 직접 이행하는 단축 경로)
func (s *fulfillmentService) EnrollFree(ctx context.Context, buyerID int64, course *domain.Course) (*domain.Enrollment, error) {
	now := time.Now()
	enrollment := &domain.Enrollment{
		BuyerID:    buyerID,
		CourseID:   course.ID,
		PricePaid:  0,
		Status:     domain.EnrollmentStatusActive,
		EnrolledAt: now,
	}

	err := s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		if err := s.enrollmentRepo.CreateTx(ctx, tx, enrollment); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				existing, findErr := s.enrollmentRepo.FindByBuyerAndCourse(ctx, buyerID, course.ID)
				if findErr != nil {
					return errors.Wrap(errors.ErrCodeDatabaseError, "failed to load enrollment", findErr)
				}
				enrollment = existing
				return nil
			}
			return errors.Wrap(errors.ErrCodeFulfillment, "failed to create enrollment", err)
		}

		if course.HasCertificate {
			if err := s.issueCertificate(ctx, tx, buyerID, course.ID, now); err != nil {
				return err
			}
		}

		evt := events.EnrollmentCompletedEvent{
			BaseEvent: events.BaseEvent{
				EventID:       uuid.New().String(),
				EventType:     events.EventEnrollmentCompleted,
				SchemaVersion: 1,
				OccurredAt:    now,
				CorrelationID: uuid.New().String(),
			},
			BuyerID:   buyerID,
			CourseIDs: []int64{course.ID},
		}
		return s.insertOutbox(ctx, tx, "enrollment", enrollment.ID, evt.EventType, evt, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("free enrollment created",
		zap.Int64("buyerId", buyerID),
		zap.Int64("courseId", course.ID))

	return enrollment, nil
}
