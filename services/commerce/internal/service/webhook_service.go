package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/common/idempotency"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// 제공자 웹훅 이벤트 타입
const (
	EventTypeCheckoutSessionCompleted = "checkout.session.completed"
	EventTypeChargeRefunded           = "charge.refunded"
)

// ProviderEvent 제공자 웹훅 페이로드
type ProviderEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"sessionId"`
	} `json:"data"`
}

// CheckoutStatus 리다이렉트 엔드포인트 응답
type CheckoutStatus struct {
	OrderID       int64                `json:"orderId"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	Enrolled      bool                 `json:"enrolled"`
}

// WebhookService 제공자 웹훅 처리 서비스.
// 세션 참조가 멱등성 키다: 같은 이벤트가 몇 번 배달되어도 수강 등록과
// 인보이스는 정확히 한 번만 만들어진다.
type WebhookService interface {
	HandleEvent(ctx context.Context, body []byte, signature string) error
	SuccessRedirect(ctx context.Context, sessionRef string) (*CheckoutStatus, error)
	CancelRedirect(ctx context.Context, sessionRef string) (*CheckoutStatus, error)
}

type webhookService struct {
	secret      []byte
	txm         repository.TxManager
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	fulfillment FulfillmentService
	refund      RefundService
	idemStore   idempotency.Store // nil이면 DB 잠금 경로만 사용
	logger      *zap.Logger
}

// NewWebhookService 웹훅 서비스 생성
func NewWebhookService(
	secret string,
	txm repository.TxManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	fulfillment FulfillmentService,
	refund RefundService,
	idemStore idempotency.Store,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		secret:      []byte(secret),
		txm:         txm,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		fulfillment: fulfillment,
		refund:      refund,
		idemStore:   idemStore,
		logger:      logger,
	}
}

// HandleEvent 웹훅 이벤트 처리.
// 서명 검증 실패 시 아무 것도 변경하지 않는다. 상태 전이가 실패하면 전체가
// 롤백되어 "아직 처리되지 않은 이벤트"와 동일한 상태로 남고, 제공자의 재전송에
// 의해 다시 시도된다.
func (s *webhookService) HandleEvent(ctx context.Context, body []byte, signature string) error {
	if err := s.verifySignature(body, signature); err != nil {
		s.logger.Warn("webhook signature verification failed", zap.Error(err))
		return err
	}

	var evt ProviderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, "malformed webhook payload", err)
	}

	switch evt.Type {
	case EventTypeCheckoutSessionCompleted, EventTypeChargeRefunded:
	default:
		// 미인식 이벤트는 수용하고 무시
		s.logger.Info("ignoring unrecognized event type", zap.String("type", evt.Type))
		return nil
	}

	if evt.Data.SessionID == "" {
		return errors.New(errors.ErrCodeValidation, "missing session reference")
	}

	// Redis 빠른 경로 (best effort). 최종 방어선은 아래 DB 행 잠금이다.
	// 처리 전에 이벤트 ID를 선점하고, 실패하면 해제해 재전송이 다시 시도되게 한다.
	reserved := false
	if s.idemStore != nil && evt.ID != "" {
		if processed, err := s.idemStore.IsProcessed(ctx, evt.ID); err == nil && processed {
			s.logger.Info("event already processed", zap.String("eventId", evt.ID))
			return nil
		}
		if ok, err := s.idemStore.Reserve(ctx, evt.ID, 24*time.Hour); err == nil {
			if !ok {
				s.logger.Info("event is being processed concurrently", zap.String("eventId", evt.ID))
				return nil
			}
			reserved = true
		}
	}

	var err error
	switch evt.Type {
	case EventTypeCheckoutSessionCompleted:
		err = s.handleSessionCompleted(ctx, evt.Data.SessionID)
	case EventTypeChargeRefunded:
		err = s.handleChargeRefunded(ctx, evt.Data.SessionID)
	}
	if err != nil {
		if reserved {
			if relErr := s.idemStore.Release(ctx, evt.ID); relErr != nil {
				s.logger.Warn("failed to release event reservation",
					zap.String("eventId", evt.ID), zap.Error(relErr))
			}
		}
		return err
	}

	return nil
}

func (s *webhookService) verifySignature(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return errors.New(errors.ErrCodeSignatureInvalid, "webhook secret is not configured")
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimSpace(signature)
	if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return errors.New(errors.ErrCodeSignatureInvalid, "webhook signature mismatch")
	}

	return nil
}

// handleSessionCompleted 성공 이벤트 처리.
// 결제 행 잠금 후 상태를 확인하고, 첫 수신일 때만 결제/주문 완료와 이행을
// 한 트랜잭션으로 수행한다.
func (s *webhookService) handleSessionCompleted(ctx context.Context, sessionRef string) error {
	return s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		payment, err := s.paymentRepo.FindBySessionRefForUpdateTx(ctx, tx, sessionRef)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				// 알 수 없는/외부 이벤트: 변경 없이 수용
				s.logger.Warn("unknown session reference, ignoring", zap.String("sessionRef", sessionRef))
				return nil
			}
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
		}

		switch payment.Status {
		case domain.PaymentStatusCompleted:
			// 멱등성 가드: 재배달은 이행을 다시 실행하지 않는다
			s.logger.Info("payment already completed, skipping",
				zap.Int64("paymentId", payment.ID),
				zap.String("sessionRef", sessionRef))
			return nil
		case domain.PaymentStatusCancelled, domain.PaymentStatusRefunded:
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("payment is already %s", payment.Status))
		}

		ok, err := s.paymentRepo.UpdateStatusTx(ctx, tx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update payment status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "concurrent payment transition")
		}

		ok, err = s.orderRepo.UpdateStatusTx(ctx, tx, payment.OrderID, domain.OrderStatusPending, domain.OrderStatusCompleted)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update order status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "order is not pending")
		}

		order, err := s.orderRepo.FindByIDTx(ctx, tx, payment.OrderID)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to load order", err)
		}

		if err := s.fulfillment.Fulfill(ctx, tx, order, payment); err != nil {
			s.logger.Error("fulfillment failed, rolling back",
				zap.Int64("orderId", order.ID),
				zap.Error(err))
			return err
		}

		s.logger.Info("payment completed via webhook",
			zap.Int64("orderId", order.ID),
			zap.Int64("paymentId", payment.ID))

		return nil
	})
}

// handleChargeRefunded 환불 이벤트 처리.
// 첫 수신일 때만 결제/주문/인보이스를 환불 상태로 전환하고 이행을 되돌린다.
func (s *webhookService) handleChargeRefunded(ctx context.Context, sessionRef string) error {
	return s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		payment, err := s.paymentRepo.FindBySessionRefForUpdateTx(ctx, tx, sessionRef)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				s.logger.Warn("unknown session reference, ignoring", zap.String("sessionRef", sessionRef))
				return nil
			}
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
		}

		if payment.Status == domain.PaymentStatusRefunded {
			// 멱등성 가드: 재배달은 되돌리기를 다시 실행하지 않는다
			s.logger.Info("payment already refunded, skipping",
				zap.Int64("paymentId", payment.ID),
				zap.String("sessionRef", sessionRef))
			return nil
		}
		if !payment.CanRefund() {
			return errors.New(errors.ErrCodeConflict, fmt.Sprintf("payment is %s, cannot refund", payment.Status))
		}

		ok, err := s.paymentRepo.UpdateStatusTx(ctx, tx, payment.ID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update payment status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "concurrent payment transition")
		}

		ok, err = s.orderRepo.UpdateStatusTx(ctx, tx, payment.OrderID, domain.OrderStatusCompleted, domain.OrderStatusRefunded)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update order status", err)
		}
		if !ok {
			return errors.New(errors.ErrCodeConflict, "order is not completed")
		}

		order, err := s.orderRepo.FindByIDTx(ctx, tx, payment.OrderID)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to load order", err)
		}

		if err := s.refund.Reverse(ctx, tx, order, payment); err != nil {
			s.logger.Error("refund reversal failed, rolling back",
				zap.Int64("orderId", order.ID),
				zap.Error(err))
			return err
		}

		s.logger.Info("payment refunded via webhook",
			zap.Int64("orderId", order.ID),
			zap.Int64("paymentId", payment.ID))

		return nil
	})
}

// SuccessRedirect 성공 리다이렉트 처리. 세션 참조로 결제를 역조회해 현재 상태를
// 반환한다. 웹훅이 먼저 도착해 이미 처리된 경우에도 안전하다 (읽기 전용).
func (s *webhookService) SuccessRedirect(ctx context.Context, sessionRef string) (*CheckoutStatus, error) {
	payment, err := s.paymentRepo.FindBySessionRef(ctx, sessionRef)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.ErrCodeNotFound, "unknown session reference")
		}
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
	}

	return &CheckoutStatus{
		OrderID:       payment.OrderID,
		PaymentStatus: payment.Status,
		Enrolled:      payment.Status == domain.PaymentStatusCompleted,
	}, nil
}

// CancelRedirect 취소 리다이렉트 처리. 결제가 아직 PENDING일 때만 결제와 주문을
// 취소한다. 이미 완료된 결제는 그대로 두고 현재 상태를 반환한다.
func (s *webhookService) CancelRedirect(ctx context.Context, sessionRef string) (*CheckoutStatus, error) {
	var status *CheckoutStatus

	err := s.txm.WithinTx(ctx, func(tx repository.Tx) error {
		payment, err := s.paymentRepo.FindBySessionRefForUpdateTx(ctx, tx, sessionRef)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.New(errors.ErrCodeNotFound, "unknown session reference")
			}
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to find payment", err)
		}

		if payment.CanCancel() {
			if _, err := s.paymentRepo.UpdateStatusTx(ctx, tx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCancelled); err != nil {
				return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update payment status", err)
			}
			if _, err := s.orderRepo.UpdateStatusTx(ctx, tx, payment.OrderID, domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
				return errors.Wrap(errors.ErrCodeDatabaseError, "failed to update order status", err)
			}
			payment.Status = domain.PaymentStatusCancelled
		}

		status = &CheckoutStatus{
			OrderID:       payment.OrderID,
			PaymentStatus: payment.Status,
			Enrolled:      payment.Status == domain.PaymentStatusCompleted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}

// Sign 페이로드 서명 생성 (테스트와 시뮬레이션 제공자에서 사용)
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
