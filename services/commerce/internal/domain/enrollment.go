package domain

import "time"

// EnrollmentStatus 수강 등록 상태
type EnrollmentStatus string

const (
	EnrollmentStatusActive EnrollmentStatus = "ACTIVE"
)

// Enrollment 수강 등록 도메인 모델 ((buyer, course) 조합당 최대 1건)
type Enrollment struct {
	ID         int64
	BuyerID    int64
	CourseID   int64
	PricePaid  int64
	PaymentID  *int64
	Status     EnrollmentStatus
	EnrolledAt time.Time
}

// Certificate 수료증 도메인 모델 (발급 후 불변, 환불 시에만 삭제)
type Certificate struct {
	ID       int64
	BuyerID  int64
	CourseID int64
	IssuedAt time.Time
}
