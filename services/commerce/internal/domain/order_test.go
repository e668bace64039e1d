package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeFinalAmount(t *testing.T) {
	t.Run("discount is subtracted per item", func(t *testing.T) {
		items := []OrderItem{
			{CourseID: 1, Price: 100_00, Discount: 20_00},
			{CourseID: 2, Price: 50_00},
		}
		assert.Equal(t, int64(130_00), ComputeFinalAmount(items))
	})

	t.Run("never goes negative", func(t *testing.T) {
		items := []OrderItem{
			{CourseID: 1, Price: 10_00, Discount: 30_00},
		}
		assert.Equal(t, int64(0), ComputeFinalAmount(items))
	})

	t.Run("over-discounted item offsets the total", func(t *testing.T) {
		items := []OrderItem{
			{CourseID: 1, Price: 100_00},
			{CourseID: 2, Price: 50_00, Discount: 80_00},
		}
		assert.Equal(t, int64(70_00), ComputeFinalAmount(items))
	})

	t.Run("empty order is zero", func(t *testing.T) {
		assert.Equal(t, int64(0), ComputeFinalAmount(nil))
	})
}

func TestOrderItemNet(t *testing.T) {
	assert.Equal(t, int64(80_00), OrderItem{Price: 100_00, Discount: 20_00}.Net())
	assert.Equal(t, int64(0), OrderItem{Price: 50_00, Discount: 50_00}.Net())
	// 할인이 가격을 초과해도 항목 금액은 음수가 되지 않는다
	assert.Equal(t, int64(0), OrderItem{Price: 50_00, Discount: 80_00}.Net())
}

func TestTotalDiscount(t *testing.T) {
	items := []OrderItem{
		{Price: 100_00, Discount: 20_00},
		{Price: 50_00, Discount: 5_00},
	}
	assert.Equal(t, int64(25_00), TotalDiscount(items))
}

func TestOrderCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusCompleted, OrderStatusRefunded, true},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCompleted, false},
		{OrderStatusRefunded, OrderStatusPending, false},
	}

	for _, tt := range tests {
		order := &Order{Status: tt.from}
		assert.Equal(t, tt.allowed, order.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestNewInvoice(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	order := &Order{
		ID:          42,
		Discount:    20_00,
		Tax:         0,
		FinalAmount: 80_00,
		Items: []OrderItem{
			{CourseID: 1, Price: 100_00, Discount: 20_00},
		},
	}

	invoice := NewInvoice(order, issuedAt)

	assert.Equal(t, int64(42), invoice.OrderID)
	assert.Equal(t, InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, int64(100_00), invoice.TotalAmount)
	assert.Equal(t, int64(20_00), invoice.Discount)
	assert.Equal(t, int64(80_00), invoice.FinalAmount)
	assert.Equal(t, issuedAt.Add(InvoiceDuePeriod), invoice.DueDate)
}

func TestPaymentGuards(t *testing.T) {
	assert.True(t, (&Payment{Status: PaymentStatusCompleted}).CanRefund())
	assert.False(t, (&Payment{Status: PaymentStatusPending}).CanRefund())
	assert.True(t, (&Payment{Status: PaymentStatusPending}).CanCancel())
	assert.False(t, (&Payment{Status: PaymentStatusCompleted}).CanCancel())
}
