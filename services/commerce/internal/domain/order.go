package domain

import "time"

// OrderStatus 주문 상태
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order 주문 도메인 모델
type Order struct {
	ID             int64
	BuyerID        int64
	Status         OrderStatus
	Discount       int64
	Tax            int64
	FinalAmount    int64
	BillingAddress string
	Version        int64
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem 주문 항목 (주문 시점의 가격 스냅샷, 이후 강의 가격 변경과 무관)
type OrderItem struct {
	ID       int64
	OrderID  int64
	CourseID int64
	Price    int64
	Discount int64
}

// Net 항목의 실 결제 금액 (할인이 가격을 초과해도 음수가 되지 않는다)
func (i OrderItem) Net() int64 {
	net := i.Price - i.Discount
	if net < 0 {
		return 0
	}
	return net
}

// ComputeFinalAmount 최종 결제 금액 계산. 항목별 가격-할인의 합이며 총액 기준으로 음수를 방지한다.
func ComputeFinalAmount(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Price - item.Discount
	}
	if total < 0 {
		return 0
	}
	return total
}

// TotalDiscount 전체 할인 금액
func TotalDiscount(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Discount
	}
	return total
}

// CourseIDs 주문에 포함된 강의 ID 목록
func (o *Order) CourseIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.CourseID)
	}
	return ids
}

// CanTransitionTo 상태 전이 가능 여부 확인
func (o *Order) CanTransitionTo(newStatus OrderStatus) bool {
	transitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending: {
			OrderStatusCompleted,
			OrderStatusCancelled,
		},
		OrderStatusCompleted: {
			OrderStatusRefunded,
		},
	}

	allowed, exists := transitions[o.Status]
	if !exists {
		return false
	}

	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}

	return false
}
