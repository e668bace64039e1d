package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutSessionParams 체크아웃 세션 생성 파라미터.
// 메타데이터로 주문/결제 ID를 싣고, 웹훅에서 세션 참조로 역조회한다.
type CheckoutSessionParams struct {
	OrderID    int64
	PaymentID  int64
	Amount     int64
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession 생성된 체크아웃 세션
type CheckoutSession struct {
	ID  string
	URL string
}

// ProviderClient 외부 결제 제공자 클라이언트 인터페이스
type ProviderClient interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
}

// SimulatedProvider 외부 결제 제공자 호출 시뮬레이션.
// 실제로는 제공자 API를 호출해 호스팅 결제 페이지 세션을 만든다.
type SimulatedProvider struct {
	checkoutBaseURL string
	logger          *zap.Logger
}

// NewSimulatedProvider 시뮬레이션 제공자 생성
func NewSimulatedProvider(checkoutBaseURL string, logger *zap.Logger) *SimulatedProvider {
	return &SimulatedProvider{
		checkoutBaseURL: checkoutBaseURL,
		logger:          logger,
	}
}

// CreateCheckoutSession 체크아웃 세션 생성
func (p *SimulatedProvider) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	// 네트워크 지연 시뮬레이션
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	sessionID := fmt.Sprintf("cs_%s", uuid.New().String())

	p.logger.Info("checkout session created",
		zap.String("sessionId", sessionID),
		zap.Int64("orderId", params.OrderID),
		zap.Int64("paymentId", params.PaymentID),
		zap.Int64("amount", params.Amount))

	return &CheckoutSession{
		ID:  sessionID,
		URL: fmt.Sprintf("%s/pay/%s", p.checkoutBaseURL, sessionID),
	}, nil
}
