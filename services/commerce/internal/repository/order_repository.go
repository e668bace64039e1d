package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
)

// OrderRepository 주문 레포지토리 인터페이스
type OrderRepository interface {
	CreateTx(ctx context.Context, tx Tx, order *domain.Order) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	FindByIDTx(ctx context.Context, tx Tx, id int64) (*domain.Order, error)
	// UpdateStatusTx 현재 상태가 from일 때만 to로 전이 (조건부 업데이트)
	UpdateStatusTx(ctx context.Context, tx Tx, id int64, from, to domain.OrderStatus) (bool, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository 주문 레포지토리 생성
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateTx 주문과 주문 항목을 함께 생성
func (r *orderRepository) CreateTx(ctx context.Context, tx Tx, order *domain.Order) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (buyer_id, status, discount, tax, final_amount, billing_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, version
	`

	err = sqlTx.QueryRowContext(
		ctx,
		query,
		order.BuyerID,
		order.Status,
		order.Discount,
		order.Tax,
		order.FinalAmount,
		order.BillingAddress,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID, &order.Version)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, course_id, price, discount)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := sqlTx.QueryRowContext(ctx, itemQuery, item.OrderID, item.CourseID, item.Price, item.Discount).
			Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

// FindByID ID로 주문 조회 (항목 포함)
func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findByID(ctx, r.db, id)
}

// FindByIDTx 트랜잭션 내에서 ID로 주문 조회 (항목 포함)
func (r *orderRepository) FindByIDTx(ctx context.Context, tx Tx, id int64) (*domain.Order, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return nil, err
	}
	return r.findByID(ctx, sqlTx, id)
}

func (r *orderRepository) findByID(ctx context.Context, q querier, id int64) (*domain.Order, error) {
	query := `
		SELECT id, buyer_id, status, discount, tax, final_amount, billing_address, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order := &domain.Order{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.BuyerID,
		&order.Status,
		&order.Discount,
		&order.Tax,
		&order.FinalAmount,
		&order.BillingAddress,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	items, err := r.loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, course_id, price, discount
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.CourseID, &item.Price, &item.Discount); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// UpdateStatusTx 조건부 상태 전이. 현재 상태가 from이 아니면 false 반환.
func (r *orderRepository) UpdateStatusTx(ctx context.Context, tx Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE orders
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := sqlTx.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
