package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// CreateOrderCommand 주문 생성 커맨드
type CreateOrderCommand struct {
	BuyerID        int64
	CourseIDs      []int64
	BillingAddress string
}

// CreateOrderResult 주문 생성 결과.
// 무료 강의만 담긴 주문은 Order 없이 바로 등록된다 (FreeEnrollments에 결과가 담긴다).
type CreateOrderResult struct {
	Order           *domain.Order
	FreeEnrollments []*domain.Enrollment
}

// OrderService 주문 서비스 인터페이스
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error)
	GetOrder(ctx context.Context, buyerID, orderID int64) (*domain.Order, error)
	CancelOrder(ctx context.Context, buyerID, orderID int64) error
}

type orderService struct {
	txm            repository.TxManager
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	courseRepo     repository.CourseRepository
	enrollmentRepo repository.EnrollmentRepository
	fulfillment    FulfillmentService
	logger         *zap.Logger
}

// NewOrderService 주문 서비스 생성
func NewOrderService(
	txm repository.TxManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	courseRepo repository.CourseRepository,
	enrollmentRepo repository.EnrollmentRepository,
	fulfillment FulfillmentService,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		txm:            txm,
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		courseRepo:     courseRepo,
		enrollmentRepo: enrollmentRepo,
		fulfillment:    fulfillment,
		logger:         logger,
	}
}

// CreateOrder 주문 생성. 강의 가격/할인은 주문 시점에 스냅샷되어
// 이후 강의 가격 변경과 무관하게 유지된다.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*CreateOrderResult, error) {
	if cmd.BuyerID <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "buyer id is required")
	}
	if len(cmd.CourseIDs) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "order must contain at least one course")
	}

	seen := make(map[int64]bool, len(cmd.CourseIDs))
	for _, id := range cmd.CourseIDs {
		if seen[id] {
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("duplicate course %d in order", id))
		}
		seen[id] = true
	}

	courses, err := s.courseRepo.FindByIDs(ctx, cmd.CourseIDs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to load courses", err)
	}

	courseByID := make(map[int64]*domain.Course, len(courses))
	for _, course := range courses {
		courseByID[course.ID] = course
	}

	items := make([]domain.OrderItem, 0, len(cmd.CourseIDs))
	for _, id := range cmd.CourseIDs {
		course, ok := courseByID[id]
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("course %d not found", id))
		}
		if !course.Published {
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("course %d is not purchasable", id))
		}
		items = append(items, domain.OrderItem{
			CourseID: course.ID,
			Price:    course.Price,
			Discount: course.Discount,
		})
	}

	enrolled, err := s.enrollmentRepo.ExistsForAny(ctx, cmd.BuyerID, cmd.CourseIDs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to check enrollments", err)
	}
	if enrolled {
		return nil, errors.New(errors.ErrCodeConflict, "already enrolled")
	}

	finalAmount := domain.ComputeFinalAmount(items)

	// 무료 단축 경로: 주문/결제 없이 바로 등록
	if finalAmount == 0 {
		enrollments := make([]*domain.Enrollment, 0, len(items))
		for _, item := range items {
			enrollment, err := s.fulfillment.EnrollFree(ctx, cmd.BuyerID, courseByID[item.CourseID])
			if err != nil {
				return nil, err
			}
			enrollments = append(enrollments, enrollment)
		}
		return &CreateOrderResult{FreeEnrollments: enrollments}, nil
	}

	now := time.Now()
	order := &domain.Order{
		BuyerID:        cmd.BuyerID,
		Status:         domain.OrderStatusPending,
		Discount:       domain.TotalDiscount(items),
		Tax:            0,
		FinalAmount:    finalAmount,
		BillingAddress: cmd.BillingAddress,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		return s.orderRepo.CreateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to create order", err)
	}

	s.logger.Info("order created",
		zap.Int64("orderId", order.ID),
		zap.Int64("buyerId", order.BuyerID),
		zap.Int64("finalAmount", order.FinalAmount))

	return &CreateOrderResult{Order: order}, nil
}

// GetOrder 주문 조회 (소유자만)
func (s *orderService) GetOrder(ctx context.Context, buyerID, orderID int64) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.ErrCodeNotFound, "order not found")
		}
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to find order", err)
	}

	if order.BuyerID != buyerID {
		return nil, errors.New(errors.ErrCodeAuthorization, "not the order owner")
	}

	return order, nil
}

// CancelOrder 주문 취소. PENDING 상태에서만 허용되며, 전이는 현재 상태를 조건으로
// 한 단일 UPDATE로 수행된다 (동시에 도착한 성공 웹훅과의 경쟁에서 마지막 쓰기가
// 이기는 일이 없도록).
func (s *orderService) CancelOrder(ctx context.Context, buyerID, orderID int64) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.New(errors.ErrCodeNotFound, "order not found")
		}
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to find order", err)
	}

	if order.BuyerID != buyerID {
		return errors.New(errors.ErrCodeAuthorization, "not the order owner")
	}

	err = s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		// 결제 행 잠금으로 웹훅 처리와 직렬화
		payment, err := s.paymentRepo.FindByOrderIDForUpdateTx(ctx, tx, orderID)
		if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to lock payment", err)
		}

		if payment != nil && !payment.CanCancel() {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("payment is already %s", payment.Status))
		}

		ok, err := s.orderRepo.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusPending, domain.OrderStatusCancelled)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update order status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "order is not cancellable")
		}

		if payment != nil {
			if _, err := s.paymentRepo.UpdateStatusTx(ctx, tx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCancelled); err != nil {
				return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update payment status", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("order cancelled",
		zap.Int64("orderId", orderID),
		zap.Int64("buyerId", buyerID))

	return nil
}
