package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/lib/pq"
)

// PaymentRepository 결제 레포지토리 인터페이스
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	CreateTx(ctx context.Context, tx Tx, payment *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error)
	FindBySessionRef(ctx context.Context, ref string) (*domain.Payment, error)
	// FindBySessionRefForUpdateTx 세션 참조로 결제 행 잠금 조회 (중복 웹훅 경쟁 방지)
	FindBySessionRefForUpdateTx(ctx context.Context, tx Tx, ref string) (*domain.Payment, error)
	FindByOrderIDForUpdateTx(ctx context.Context, tx Tx, orderID int64) (*domain.Payment, error)
	UpdateSessionRef(ctx context.Context, id int64, ref string) error
	// UpdateStatusTx 현재 상태가 from일 때만 to로 전이 (조건부 업데이트)
	UpdateStatusTx(ctx context.Context, tx Tx, id int64, from, to domain.PaymentStatus) (bool, error)
}

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository 결제 레포지토리 생성
func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, order_id, buyer_id, amount, currency, method, status, provider_session_ref, created_at, updated_at`

// Create 결제 생성
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.create(ctx, r.db, payment)
}

// CreateTx 트랜잭션 내에서 결제 생성
func (r *paymentRepository) CreateTx(ctx context.Context, tx Tx, payment *domain.Payment) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}
	return r.create(ctx, sqlTx, payment)
}

func (r *paymentRepository) create(ctx context.Context, q querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (order_id, buyer_id, amount, currency, method, status, provider_session_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := q.QueryRowContext(
		ctx,
		query,
		payment.OrderID,
		payment.BuyerID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
		nullString(payment.ProviderSessionRef),
		payment.CreatedAt,
		payment.UpdatedAt,
	).Scan(&payment.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("payment for order %d: %w", payment.OrderID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// FindByOrderID 주문 ID로 결제 조회
func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, orderID))
}

// FindBySessionRef 세션 참조로 결제 조회
func (r *paymentRepository) FindBySessionRef(ctx context.Context, ref string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_session_ref = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ref))
}

// FindBySessionRefForUpdateTx 세션 참조로 결제 행 잠금 조회
func (r *paymentRepository) FindBySessionRefForUpdateTx(ctx context.Context, tx Tx, ref string) (*domain.Payment, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_session_ref = $1 FOR UPDATE`
	return r.scanOne(sqlTx.QueryRowContext(ctx, query, ref))
}

// FindByOrderIDForUpdateTx 주문 ID로 결제 행 잠금 조회
func (r *paymentRepository) FindByOrderIDForUpdateTx(ctx context.Context, tx Tx, orderID int64) (*domain.Payment, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 FOR UPDATE`
	return r.scanOne(sqlTx.QueryRowContext(ctx, query, orderID))
}

// UpdateSessionRef 체크아웃 세션 참조 저장
func (r *paymentRepository) UpdateSessionRef(ctx context.Context, id int64, ref string) error {
	query := `
		UPDATE payments
		SET provider_session_ref = $1, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, ref, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("session ref %s: %w", ref, ErrDuplicate)
		}
		return fmt.Errorf("failed to update session ref: %w", err)
	}

	return nil
}

// UpdateStatusTx 조건부 상태 전이. 현재 상태가 from이 아니면 false 반환.
func (r *paymentRepository) UpdateStatusTx(ctx context.Context, tx Tx, id int64, from, to domain.PaymentStatus) (bool, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := sqlTx.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *paymentRepository) scanOne(row *sql.Row) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var sessionRef sql.NullString

	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.BuyerID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Status,
		&sessionRef,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}

	payment.ProviderSessionRef = sessionRef.String
	return payment, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
