package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/lib/pq"
)

// InvoiceRepository 인보이스 레포지토리 인터페이스
type InvoiceRepository interface {
	// CreateTx 인보이스 발행. 주문당 1건 유니크 제약, 중복이면 ErrDuplicate 반환.
	CreateTx(ctx context.Context, tx Tx, invoice *domain.Invoice) error
	FindByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error)
	// UpdateStatusTx 인보이스 상태 변경 (멱등: 이미 해당 상태면 false 반환)
	UpdateStatusTx(ctx context.Context, tx Tx, orderID int64, status domain.InvoiceStatus) (bool, error)
}

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository 인보이스 레포지토리 생성
func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// CreateTx 인보이스 발행
func (r *invoiceRepository) CreateTx(ctx context.Context, tx Tx, invoice *domain.Invoice) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (order_id, status, total_amount, tax, discount, final_amount, issued_at, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = sqlTx.QueryRowContext(
		ctx,
		query,
		invoice.OrderID,
		invoice.Status,
		invoice.TotalAmount,
		invoice.Tax,
		invoice.Discount,
		invoice.FinalAmount,
		invoice.IssuedAt,
		invoice.DueDate,
	).Scan(&invoice.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("invoice for order %d: %w", invoice.OrderID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// FindByOrderID 주문 ID로 인보이스 조회
func (r *invoiceRepository) FindByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	query := `
		SELECT id, order_id, status, total_amount, tax, discount, final_amount, issued_at, due_date
		FROM invoices
		WHERE order_id = $1
	`

	invoice := &domain.Invoice{}
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&invoice.ID,
		&invoice.OrderID,
		&invoice.Status,
		&invoice.TotalAmount,
		&invoice.Tax,
		&invoice.Discount,
		&invoice.FinalAmount,
		&invoice.IssuedAt,
		&invoice.DueDate,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invoice for order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}

	return invoice, nil
}

// UpdateStatusTx 인보이스 상태 변경
func (r *invoiceRepository) UpdateStatusTx(ctx context.Context, tx Tx, orderID int64, status domain.InvoiceStatus) (bool, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE invoices
		SET status = $1
		WHERE order_id = $2 AND status <> $1
	`

	result, err := sqlTx.ExecContext(ctx, query, status, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to update invoice status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
