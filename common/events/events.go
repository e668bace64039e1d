package events

import "time"

// EventType 이벤트 타입 정의
type EventType string

const (
	// Enrollment Events
	EventEnrollmentCompleted EventType = "enrollment.completed.v1"
	EventEnrollmentRevoked   EventType = "enrollment.revoked.v1"

	// Payment Events
	EventPaymentCompleted EventType = "payment.completed.v1"
	EventPaymentRefunded  EventType = "payment.refunded.v1"

	// Invoice Events
	EventInvoiceIssued EventType = "invoice.issued.v1"
)

// BaseEvent 모든 이벤트의 기본 구조
type BaseEvent struct {
	EventID       string    `json:"eventId"`
	EventType     EventType `json:"eventType"`
	SchemaVersion int       `json:"schemaVersion"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
}

// EnrollmentCompletedEvent 수강 등록 완료 이벤트 (알림/이메일 발송용)
type EnrollmentCompletedEvent struct {
	BaseEvent
	BuyerID   int64   `json:"buyerId"`
	OrderID   int64   `json:"orderId"`
	CourseIDs []int64 `json:"courseIds"`
	Amount    int64   `json:"amount"`
}

// EnrollmentRevokedEvent 수강 등록 취소 이벤트
type EnrollmentRevokedEvent struct {
	BaseEvent
	BuyerID   int64   `json:"buyerId"`
	OrderID   int64   `json:"orderId"`
	CourseIDs []int64 `json:"courseIds"`
}

// PaymentCompletedEvent 결제 완료 이벤트
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID   int64  `json:"orderId"`
	PaymentID int64  `json:"paymentId"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
}

// PaymentRefundedEvent 결제 환불 이벤트
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID   int64 `json:"orderId"`
	PaymentID int64 `json:"paymentId"`
	Amount    int64 `json:"amount"`
}

// InvoiceIssuedEvent 인보이스 발행 이벤트
type InvoiceIssuedEvent struct {
	BaseEvent
	OrderID     int64     `json:"orderId"`
	InvoiceID   int64     `json:"invoiceId"`
	FinalAmount int64     `json:"finalAmount"`
	DueDate     time.Time `json:"dueDate"`
}
