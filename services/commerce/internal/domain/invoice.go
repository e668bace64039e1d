package domain

import "time"

// InvoiceStatus 인보이스 상태
type InvoiceStatus string

const (
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusRefunded InvoiceStatus = "REFUNDED"
)

// InvoiceDuePeriod 인보이스 납기 기간
const InvoiceDuePeriod = 30 * 24 * time.Hour

// Invoice 인보이스 도메인 모델 (주문과 1:1)
type Invoice struct {
	ID          int64
	OrderID     int64
	Status      InvoiceStatus
	TotalAmount int64
	Tax         int64
	Discount    int64
	FinalAmount int64
	IssuedAt    time.Time
	DueDate     time.Time
}

// NewInvoice 주문 금액을 반영한 인보이스 생성
func NewInvoice(order *Order, issuedAt time.Time) *Invoice {
	var total int64
	for _, item := range order.Items {
		total += item.Price
	}

	return &Invoice{
		OrderID:     order.ID,
		Status:      InvoiceStatusPaid,
		TotalAmount: total,
		Tax:         order.Tax,
		Discount:    order.Discount,
		FinalAmount: order.FinalAmount,
		IssuedAt:    issuedAt,
		DueDate:     issuedAt.Add(InvoiceDuePeriod),
	}
}
