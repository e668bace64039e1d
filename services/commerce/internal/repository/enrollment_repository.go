package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/lib/pq"
)

// EnrollmentRepository 수강 등록 레포지토리 인터페이스.
// (buyer_id, course_id) 유니크 제약이 동시 등록 경쟁의 최종 방어선이다.
type EnrollmentRepository interface {
	// CreateTx 수강 등록 생성. 이미 존재하면 ErrDuplicate 반환.
	CreateTx(ctx context.Context, tx Tx, enrollment *domain.Enrollment) error
	FindByBuyerAndCourse(ctx context.Context, buyerID, courseID int64) (*domain.Enrollment, error)
	Exists(ctx context.Context, buyerID, courseID int64) (bool, error)
	ExistsForAny(ctx context.Context, buyerID int64, courseIDs []int64) (bool, error)
	// DeleteTx 수강 등록 삭제. 이미 없으면 false 반환 (에러 아님).
	DeleteTx(ctx context.Context, tx Tx, buyerID, courseID int64) (bool, error)
}

type enrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository 수강 등록 레포지토리 생성
func NewEnrollmentRepository(db *sql.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// CreateTx 수강 등록 생성
func (r *enrollmentRepository) CreateTx(ctx context.Context, tx Tx, enrollment *domain.Enrollment) error {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO enrollments (buyer_id, course_id, price_paid, payment_id, status, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = sqlTx.QueryRowContext(
		ctx,
		query,
		enrollment.BuyerID,
		enrollment.CourseID,
		enrollment.PricePaid,
		enrollment.PaymentID,
		enrollment.Status,
		enrollment.EnrolledAt,
	).Scan(&enrollment.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("enrollment buyer=%d course=%d: %w", enrollment.BuyerID, enrollment.CourseID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	return nil
}

// FindByBuyerAndCourse 수강 등록 조회
func (r *enrollmentRepository) FindByBuyerAndCourse(ctx context.Context, buyerID, courseID int64) (*domain.Enrollment, error) {
	query := `
		SELECT id, buyer_id, course_id, price_paid, payment_id, status, enrolled_at
		FROM enrollments
		WHERE buyer_id = $1 AND course_id = $2
	`

	enrollment := &domain.Enrollment{}
	var paymentID sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, buyerID, courseID).Scan(
		&enrollment.ID,
		&enrollment.BuyerID,
		&enrollment.CourseID,
		&enrollment.PricePaid,
		&paymentID,
		&enrollment.Status,
		&enrollment.EnrolledAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("enrollment buyer=%d course=%d: %w", buyerID, courseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}

	if paymentID.Valid {
		enrollment.PaymentID = &paymentID.Int64
	}

	return enrollment, nil
}

// Exists 수강 등록 존재 여부 확인
func (r *enrollmentRepository) Exists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM enrollments WHERE buyer_id = $1 AND course_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, buyerID, courseID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	return exists, nil
}

// ExistsForAny 강의 목록 중 하나라도 등록되어 있는지 확인
func (r *enrollmentRepository) ExistsForAny(ctx context.Context, buyerID int64, courseIDs []int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM enrollments WHERE buyer_id = $1 AND course_id = ANY($2))`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, buyerID, pq.Array(courseIDs)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollments: %w", err)
	}

	return exists, nil
}

// DeleteTx 수강 등록 삭제
func (r *enrollmentRepository) DeleteTx(ctx context.Context, tx Tx, buyerID, courseID int64) (bool, error) {
	sqlTx, err := asSQLTx(tx)
	if err != nil {
		return false, err
	}

	query := `DELETE FROM enrollments WHERE buyer_id = $1 AND course_id = $2`

	result, err := sqlTx.ExecContext(ctx, query, buyerID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to delete enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
