package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/lib/pq"
)

// CourseRepository 강의 조회 레포지토리 인터페이스 (읽기 전용)
type CourseRepository interface {
	FindByIDs(ctx context.Context, ids []int64) ([]*domain.Course, error)
}

type courseRepository struct {
	db *sql.DB
}

// NewCourseRepository 강의 레포지토리 생성
func NewCourseRepository(db *sql.DB) CourseRepository {
	return &courseRepository{db: db}
}

// FindByIDs ID 목록으로 강의 조회
func (r *courseRepository) FindByIDs(ctx context.Context, ids []int64) ([]*domain.Course, error) {
	query := `
		SELECT id, title, price, discount, has_certificate, instructor_id, published
		FROM courses
		WHERE id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to find courses: %w", err)
	}
	defer rows.Close()

	var courses []*domain.Course
	for rows.Next() {
		course := &domain.Course{}
		err := rows.Scan(
			&course.ID,
			&course.Title,
			&course.Price,
			&course.Discount,
			&course.HasCertificate,
			&course.InstructorID,
			&course.Published,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}

	return courses, rows.Err()
}
