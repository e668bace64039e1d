package domain

import "time"

// PaymentStatus 결제 상태
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// PaymentMethod 결제 수단
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodHostedCheckout PaymentMethod = "HOSTED_CHECKOUT"
)

// Payment 결제 도메인 모델 (주문과 1:1)
type Payment struct {
	ID                 int64
	OrderID            int64
	BuyerID            int64
	Amount             int64
	Currency           string
	Method             PaymentMethod
	Status             PaymentStatus
	ProviderSessionRef string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanRefund 환불 가능 여부 확인
func (p *Payment) CanRefund() bool {
	return p.Status == PaymentStatusCompleted
}

// CanCancel 취소 가능 여부 확인
func (p *Payment) CanCancel() bool {
	return p.Status == PaymentStatusPending
}
