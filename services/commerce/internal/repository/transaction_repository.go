package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// TransactionFilter 거래 내역 조회 필터
type TransactionFilter struct {
	BuyerID  int64 // 0이면 전체 (관리자)
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// TransactionSummary 주문/결제/인보이스 요약 (읽기 전용 리포팅)
type TransactionSummary struct {
	OrderID       int64      `json:"orderId"`
	BuyerID       int64      `json:"buyerId"`
	OrderStatus   string     `json:"orderStatus"`
	FinalAmount   int64      `json:"finalAmount"`
	PaymentID     *int64     `json:"paymentId,omitempty"`
	PaymentStatus *string    `json:"paymentStatus,omitempty"`
	Method        *string    `json:"method,omitempty"`
	InvoiceID     *int64     `json:"invoiceId,omitempty"`
	InvoiceStatus *string    `json:"invoiceStatus,omitempty"`
	CourseTitles  []string   `json:"courseTitles"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// TransactionRepository 거래 내역 조회 레포지토리 (일관성 경로 밖의 읽기 전용 인터페이스)
type TransactionRepository interface {
	List(ctx context.Context, filter TransactionFilter) ([]*TransactionSummary, int64, error)
}

type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository 거래 내역 레포지토리 생성
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// List 거래 내역 페이지 조회
func (r *transactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*TransactionSummary, int64, error) {
	query := `
		SELECT o.id, o.buyer_id, o.status, o.final_amount,
		       p.id, p.status, p.method,
		       i.id, i.status,
		       COALESCE(array_agg(c.title) FILTER (WHERE c.title IS NOT NULL), '{}'),
		       o.created_at,
		       COUNT(*) OVER()
		FROM orders o
		LEFT JOIN payments p ON p.order_id = o.id
		LEFT JOIN invoices i ON i.order_id = o.id
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN courses c ON c.id = oi.course_id
		WHERE ($1 = 0 OR o.buyer_id = $1)
		  AND ($2 = '' OR o.status = $2)
		  AND ($3::timestamptz IS NULL OR o.created_at >= $3)
		  AND ($4::timestamptz IS NULL OR o.created_at <= $4)
		GROUP BY o.id, p.id, i.id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $5 OFFSET $6
	`

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx, query,
		filter.BuyerID, filter.Status, filter.From, filter.To, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var summaries []*TransactionSummary
	var total int64

	for rows.Next() {
		s := &TransactionSummary{}
		var paymentID, invoiceID sql.NullInt64
		var paymentStatus, method, invoiceStatus sql.NullString
		var titles pq.StringArray

		err := rows.Scan(
			&s.OrderID,
			&s.BuyerID,
			&s.OrderStatus,
			&s.FinalAmount,
			&paymentID,
			&paymentStatus,
			&method,
			&invoiceID,
			&invoiceStatus,
			&titles,
			&s.CreatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction summary: %w", err)
		}

		if paymentID.Valid {
			s.PaymentID = &paymentID.Int64
			s.PaymentStatus = &paymentStatus.String
			s.Method = &method.String
		}
		if invoiceID.Valid {
			s.InvoiceID = &invoiceID.Int64
			s.InvoiceStatus = &invoiceStatus.String
		}
		s.CourseTitles = titles

		summaries = append(summaries, s)
	}

	return summaries, total, rows.Err()
}
