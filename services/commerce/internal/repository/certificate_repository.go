package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/lib/pq"
)

// CertificateRepository 수료증 레포지토리 인터페이스
type CertificateRepository interface {
	// CreateTx 수료증 발급. 이미 발급되어 있으면 ErrDuplicate 반환.
	CreateTx(ctx context.Context, tx Tx, certificate *domain.Certificate) error
	Exists(ctx context.Context, buyerID, courseID int64) (bool, error)
	// DeleteTx 수료증 삭제. 이미 없으면 false 반환 (에러 아님).
	DeleteTx(ctx context.Context, tx Tx, buyerID, courseID int64) (bool, error)
}

type certificateRepository struct {
	db *sql.DB
}

// NewCertificateRepository 수료증 레포지토리 생성
func NewCertificateRepository(db *sql.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

// CreateTx 수료증 발급
func (r *certificateRepository) CreateTx(ctx context.Context, tx Tx, certificate *domain.Certificate) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO certificates (buyer_id, course_id, issued_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err = sqlTx.QueryRowContext(ctx, query, certificate.BuyerID, certificate.CourseID, certificate.IssuedAt).
		Scan(&certificate.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("certificate buyer=%d course=%d: %w", certificate.BuyerID, certificate.CourseID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	return nil
}

// Exists 수료증 존재 여부 확인
func (r *certificateRepository) Exists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM certificates WHERE buyer_id = $1 AND course_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, buyerID, courseID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check certificate: %w", err)
	}

	return exists, nil
}

// DeleteTx 수료증 삭제
func (r *certificateRepository) DeleteTx(ctx context.Context, tx Tx, buyerID, courseID int64) (bool, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return false, err
	}

	query := `DELETE FROM certificates WHERE buyer_id = $1 AND course_id = $2`

	result, err := sqlTx.ExecContext(ctx, query, buyerID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to delete certificate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
