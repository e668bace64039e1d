package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/common/retry"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// CheckoutResult 결제 개시 결과
type CheckoutResult struct {
	OrderID     int64                `json:"orderId"`
	PaymentID   int64                `json:"paymentId,omitempty"`
	SessionID   string               `json:"sessionId,omitempty"`
	RedirectURL string               `json:"redirectUrl,omitempty"`
	Status      domain.PaymentStatus `json:"status"`
	Enrolled    bool                 `json:"enrolled"`
}

// Gateway 결제 게이트웨이 인터페이스.
// Direct는 동기 완료, HostedCheckout은 제공자 페이지로 리다이렉트 후 웹훅으로 완료된다.
// 프로세스 시작 시 한 번 생성해 핸들러에 주입한다. 전역 상태 없음.
type Gateway interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, order *domain.Order) (*CheckoutResult, error)
}

// ensureNotEnrolled 이미 등록된 강의가 있으면 결제 개시를 거부한다
func ensureNotEnrolled(ctx context.Context, enrollmentRepo repository.EnrollmentRepository, order *domain.Order) error {
	enrolled, err := enrollmentRepo.ExistsForAny(ctx, order.BuyerID, order.CourseIDs())
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to check enrollments", err)
	}
	if enrolled {
		return errors.New(errors.ErrCodeConflict, "already enrolled")
	}
	return nil
}

// DirectGateway 동기 결제 게이트웨이 (수동/시뮬레이션 카드 결제).
// 결제 생성, 주문 완료, 이행을 한 트랜잭션 안에서 끝낸다.
type DirectGateway struct {
	txm            repository.TxManager
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	enrollmentRepo repository.EnrollmentRepository
	fulfillment    FulfillmentService
	currency       string
	logger         *zap.Logger
}

// NewDirectGateway 동기 결제 게이트웨이 생성
func NewDirectGateway(
	txm repository.TxManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	enrollmentRepo repository.EnrollmentRepository,
	fulfillment FulfillmentService,
	currency string,
	logger *zap.Logger,
) *DirectGateway {
	return &DirectGateway{
		txm:            txm,
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		enrollmentRepo: enrollmentRepo,
		fulfillment:    fulfillment,
		currency:       currency,
		logger:         logger,
	}
}

func (g *DirectGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodCard
}

// Initiate 결제를 즉시 완료하고 같은 호출 안에서 이행까지 수행
func (g *DirectGateway) Initiate(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	if err := ensureNotEnrolled(ctx, g.enrollmentRepo, order); err != nil {
		return nil, err
	}

	now := time.Now()
	payment := &domain.Payment{
		OrderID:            order.ID,
		BuyerID:            order.BuyerID,
		Amount:             order.FinalAmount,
		Currency:           g.currency,
		Method:             domain.PaymentMethodCard,
		Status:             domain.PaymentStatusCompleted,
		ProviderSessionRef: fmt.Sprintf("txn_%d_%d", order.ID, now.UnixNano()),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := g.txm.WithinTx(ctx, func(tx repository.Tx) error {
		if err := g.paymentRepo.CreateTx(ctx, tx, payment); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				return errors.New(errors.ErrCodeConflict, "payment already exists for order")
			}
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to create payment", err)
		}

		ok, err := g.orderRepo.UpdateStatusTx(ctx, tx, order.ID, domain.OrderStatusPending, domain.OrderStatusCompleted)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update order status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "order is not pending")
		}

		return g.fulfillment.Fulfill(ctx, tx, order, payment)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("direct payment completed",
		zap.Int64("orderId", order.ID),
		zap.Int64("paymentId", payment.ID),
		zap.Int64("amount", payment.Amount))

	return &CheckoutResult{
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusCompleted,
		Enrolled:  true,
	}, nil
}

// HostedCheckoutGateway 호스팅 체크아웃 게이트웨이.
// PENDING 결제와 제공자 세션을 만들고 리다이렉트 URL을 반환한다.
// 이행은 웹훅이 성공을 확인한 뒤에만 일어난다.
type HostedCheckoutGateway struct {
	provider       ProviderClient
	paymentRepo    repository.PaymentRepository
	enrollmentRepo repository.EnrollmentRepository
	retryConfig    retry.Config
	currency       string
	returnBaseURL  string
	logger         *zap.Logger
}

// NewHostedCheckoutGateway 호스팅 체크아웃 게이트웨이 생성
func NewHostedCheckoutGateway(
	provider ProviderClient,
	paymentRepo repository.PaymentRepository,
	enrollmentRepo repository.EnrollmentRepository,
	retryConfig retry.Config,
	currency string,
	returnBaseURL string,
	logger *zap.Logger,
) *HostedCheckoutGateway {
	return &HostedCheckoutGateway{
		provider:       provider,
		paymentRepo:    paymentRepo,
		enrollmentRepo: enrollmentRepo,
		retryConfig:    retryConfig,
		currency:       currency,
		returnBaseURL:  returnBaseURL,
		logger:         logger,
	}
}

func (g *HostedCheckoutGateway) Method() domain.PaymentMethod {
	return domain.PaymentMethodHostedCheckout
}

// Initiate PENDING 결제와 체크아웃 세션 생성.
// 제공자 호출이 실패하면 주문/결제는 PENDING으로 남아 사용자가 재시도할 수 있다.
func (g *HostedCheckoutGateway) Initiate(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	if err := ensureNotEnrolled(ctx, g.enrollmentRepo, order); err != nil {
		return nil, err
	}

	payment, err := g.paymentRepo.FindByOrderID(ctx, order.ID)
	if err != nil {
		if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
		}

		now := time.Now()
		payment = &domain.Payment{
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			Amount:    order.FinalAmount,
			Currency:  g.currency,
			Method:    domain.PaymentMethodHostedCheckout,
			Status:    domain.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := g.paymentRepo.Create(ctx, payment); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				// 동시 개시 경쟁: 이미 만들어진 결제를 재사용
				payment, err = g.paymentRepo.FindByOrderID(ctx, order.ID)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
				}
			} else {
				return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to create payment", err)
			}
		}
	}

	if payment.Status != domain.PaymentStatusPending {
		return nil, errors.New(errors.ErrCodeConflict, fmt.Sprintf("payment is already %s", payment.Status))
	}

	params := CheckoutSessionParams{
		OrderID:    order.ID,
		PaymentID:  payment.ID,
		Amount:     order.FinalAmount,
		Currency:   g.currency,
		SuccessURL: fmt.Sprintf("%s/checkout/success", g.returnBaseURL),
		CancelURL:  fmt.Sprintf("%s/checkout/cancel", g.returnBaseURL),
	}

	session, err := retry.DoWithResult(ctx, g.retryConfig, g.logger, func() (*CheckoutSession, error) {
		return g.provider.CreateCheckoutSession(ctx, params)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePaymentProvider, "failed to create checkout session", err)
	}

	if err := g.paymentRepo.UpdateSessionRef(ctx, payment.ID, session.ID); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to store session ref", err)
	}

	g.logger.Info("hosted checkout initiated",
		zap.Int64("orderId", order.ID),
		zap.Int64("paymentId", payment.ID),
		zap.String("sessionId", session.ID))

	return &CheckoutResult{
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Status:      domain.PaymentStatusPending,
	}, nil
}
