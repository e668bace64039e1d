package domain

// Course 강의 조회 모델 (외부 콘텐츠 서비스 소유, 이 파이프라인에서는 읽기 전용)
type Course struct {
	ID             int64
	Title          string
	Price          int64
	Discount       int64
	HasCertificate bool
	InstructorID   int64
	Published      bool
}
