// Package memory 테스트용 인메모리 저장소.
// postgres 스키마와 동일한 유니크 제약을 강제하고, WithinTx 실패 시
// 스냅샷 복원으로 롤백 의미론을 재현한다.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
)

type enrollKey struct {
	buyerID  int64
	courseID int64
}

// Store 인메모리 저장소. 모든 레포지토리 인터페이스와 TxManager를 구현한다.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	courses      map[int64]domain.Course
	orders       map[int64]domain.Order
	payments     map[int64]domain.Payment
	enrollments  map[enrollKey]domain.Enrollment
	certificates map[enrollKey]domain.Certificate
	invoices     map[int64]domain.Invoice // order id 기준
	outbox       []repository.OutboxEvent

	nextID int64
}

// NewStore 인메모리 저장소 생성
func NewStore() *Store {
	return &Store{
		courses:      make(map[int64]domain.Course),
		orders:       make(map[int64]domain.Order),
		payments:     make(map[int64]domain.Payment),
		enrollments:  make(map[enrollKey]domain.Enrollment),
		certificates: make(map[enrollKey]domain.Certificate),
		invoices:     make(map[int64]domain.Invoice),
	}
}

// SeedCourse 테스트용 강의 등록
func (s *Store) SeedCourse(course domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if course.ID == 0 {
		course.ID = s.allocID()
	}
	s.courses[course.ID] = course
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct{}

// WithinTx 단일 트랜잭션 실행. fn이 에러를 반환하면 스냅샷으로 복원한다.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.capture()
	if err := fn(memTx{}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	orders       map[int64]domain.Order
	payments     map[int64]domain.Payment
	enrollments  map[enrollKey]domain.Enrollment
	certificates map[enrollKey]domain.Certificate
	invoices     map[int64]domain.Invoice
	outbox       []repository.OutboxEvent
	nextID       int64
}

func (s *Store) capture() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		orders:       cloneMap(s.orders),
		payments:     cloneMap(s.payments),
		enrollments:  cloneMap(s.enrollments),
		certificates: cloneMap(s.certificates),
		invoices:     cloneMap(s.invoices),
		outbox:       append([]repository.OutboxEvent(nil), s.outbox...),
		nextID:       s.nextID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.payments = snap.payments
	s.enrollments = snap.enrollments
	s.certificates = snap.certificates
	s.invoices = snap.invoices
	s.outbox = snap.outbox
	s.nextID = snap.nextID
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- CourseRepository ---

func (s *Store) FindCoursesByIDs(ctx context.Context, ids []int64) ([]*domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var courses []*domain.Course
	for _, id := range ids {
		if course, ok := s.courses[id]; ok {
			c := course
			courses = append(courses, &c)
		}
	}
	return courses, nil
}

// --- OrderRepository ---

func (s *Store) CreateOrderTx(ctx context.Context, tx repository.Tx, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.allocID()
	order.Version = 1
	for i := range order.Items {
		order.Items[i].ID = s.allocID()
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = *order
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, repository.ErrNotFound)
	}
	return &order, nil
}

func (s *Store) FindOrderByIDTx(ctx context.Context, tx repository.Tx, id int64) (*domain.Order, error) {
	return s.FindOrderByID(ctx, id)
}

func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx repository.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	order.Version++
	order.UpdatedAt = time.Now()
	s.orders[id] = order
	return true, nil
}

// --- PaymentRepository ---

func (s *Store) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPayment(payment)
}

func (s *Store) CreatePaymentTx(ctx context.Context, tx repository.Tx, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPayment(payment)
}

func (s *Store) insertPayment(payment *domain.Payment) error {
	for _, p := range s.payments {
		if p.OrderID == payment.OrderID {
			return fmt.Errorf("payment for order %d: %w", payment.OrderID, repository.ErrDuplicate)
		}
		if payment.ProviderSessionRef != "" && p.ProviderSessionRef == payment.ProviderSessionRef {
			return fmt.Errorf("session ref %s: %w", payment.ProviderSessionRef, repository.ErrDuplicate)
		}
	}
	payment.ID = s.allocID()
	s.payments[payment.ID] = *payment
	return nil
}

func (s *Store) FindPaymentByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			payment := p
			return &payment, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", repository.ErrNotFound)
}

func (s *Store) FindPaymentBySessionRef(ctx context.Context, ref string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ProviderSessionRef == ref && ref != "" {
			payment := p
			return &payment, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", repository.ErrNotFound)
}

func (s *Store) FindPaymentBySessionRefForUpdateTx(ctx context.Context, tx repository.Tx, ref string) (*domain.Payment, error) {
	return s.FindPaymentBySessionRef(ctx, ref)
}

func (s *Store) FindPaymentByOrderIDForUpdateTx(ctx context.Context, tx repository.Tx, orderID int64) (*domain.Payment, error) {
	return s.FindPaymentByOrderID(ctx, orderID)
}

func (s *Store) UpdatePaymentSessionRef(ctx context.Context, id int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid, p := range s.payments {
		if pid != id && p.ProviderSessionRef == ref {
			return fmt.Errorf("session ref %s: %w", ref, repository.ErrDuplicate)
		}
	}
	payment, ok := s.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, repository.ErrNotFound)
	}
	payment.ProviderSessionRef = ref
	payment.UpdatedAt = time.Now()
	s.payments[id] = payment
	return nil
}

func (s *Store) UpdatePaymentStatusTx(ctx context.Context, tx repository.Tx, id int64, from, to domain.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok || payment.Status != from {
		return false, nil
	}
	payment.Status = to
	payment.UpdatedAt = time.Now()
	s.payments[id] = payment
	return true, nil
}

// --- EnrollmentRepository ---

func (s *Store) CreateEnrollmentTx(ctx context.Context, tx repository.Tx, enrollment *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollKey{enrollment.BuyerID, enrollment.CourseID}
	if _, ok := s.enrollments[key]; ok {
		return fmt.Errorf("enrollment buyer=%d course=%d: %w", enrollment.BuyerID, enrollment.CourseID, repository.ErrDuplicate)
	}
	enrollment.ID = s.allocID()
	s.enrollments[key] = *enrollment
	return nil
}

func (s *Store) FindEnrollment(ctx context.Context, buyerID, courseID int64) (*domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollKey{buyerID, courseID}]
	if !ok {
		return nil, fmt.Errorf("enrollment buyer=%d course=%d: %w", buyerID, courseID, repository.ErrNotFound)
	}
	return &enrollment, nil
}

func (s *Store) EnrollmentExists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.enrollments[enrollKey{buyerID, courseID}]
	return ok, nil
}

func (s *Store) EnrollmentExistsForAny(ctx context.Context, buyerID int64, courseIDs []int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, courseID := range courseIDs {
		if _, ok := s.enrollments[enrollKey{buyerID, courseID}]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteEnrollmentTx(ctx context.Context, tx repository.Tx, buyerID, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollKey{buyerID, courseID}
	if _, ok := s.enrollments[key]; !ok {
		return false, nil
	}
	delete(s.enrollments, key)
	return true, nil
}

// EnrollmentCount 테스트 검증용 수강 등록 수
func (s *Store) EnrollmentCount(buyerID, courseID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[enrollKey{buyerID, courseID}]; ok {
		return 1
	}
	return 0
}

// --- CertificateRepository ---

func (s *Store) CreateCertificateTx(ctx context.Context, tx repository.Tx, certificate *domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollKey{certificate.BuyerID, certificate.CourseID}
	if _, ok := s.certificates[key]; ok {
		return fmt.Errorf("certificate buyer=%d course=%d: %w", certificate.BuyerID, certificate.CourseID, repository.ErrDuplicate)
	}
	certificate.ID = s.allocID()
	s.certificates[key] = *certificate
	return nil
}

func (s *Store) CertificateExists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.certificates[enrollKey{buyerID, courseID}]
	return ok, nil
}

func (s *Store) DeleteCertificateTx(ctx context.Context, tx repository.Tx, buyerID, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollKey{buyerID, courseID}
	if _, ok := s.certificates[key]; !ok {
		return false, nil
	}
	delete(s.certificates, key)
	return true, nil
}

// --- InvoiceRepository ---

func (s *Store) CreateInvoiceTx(ctx context.Context, tx repository.Tx, invoice *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[invoice.OrderID]; ok {
		return fmt.Errorf("invoice for order %d: %w", invoice.OrderID, repository.ErrDuplicate)
	}
	invoice.ID = s.allocID()
	s.invoices[invoice.OrderID] = *invoice
	return nil
}

func (s *Store) FindInvoiceByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[orderID]
	if !ok {
		return nil, fmt.Errorf("invoice for order %d: %w", orderID, repository.ErrNotFound)
	}
	return &invoice, nil
}

func (s *Store) UpdateInvoiceStatusTx(ctx context.Context, tx repository.Tx, orderID int64, status domain.InvoiceStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[orderID]
	if !ok || invoice.Status == status {
		return false, nil
	}
	invoice.Status = status
	s.invoices[orderID] = invoice
	return true, nil
}

// --- OutboxRepository ---

func (s *Store) InsertOutboxTx(ctx context.Context, tx repository.Tx, event *repository.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.allocID()
	s.outbox = append(s.outbox, *event)
	return nil
}

func (s *Store) FindPendingOutbox(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*repository.OutboxEvent
	for i := range s.outbox {
		if s.outbox[i].Status != "PENDING" {
			continue
		}
		event := s.outbox[i]
		events = append(events, &event)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = "SENT"
			s.outbox[i].SentAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %d: %w", id, repository.ErrNotFound)
}

// OutboxEventTypes 테스트 검증용 이벤트 타입 목록
func (s *Store) OutboxEventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.outbox {
		types = append(types, e.EventType)
	}
	return types
}

// --- TransactionRepository ---

func (s *Store) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]*repository.TransactionSummary, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*repository.TransactionSummary
	for _, order := range s.orders {
		if filter.BuyerID != 0 && order.BuyerID != filter.BuyerID {
			continue
		}
		if filter.Status != "" && string(order.Status) != filter.Status {
			continue
		}
		if filter.From != nil && order.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && order.CreatedAt.After(*filter.To) {
			continue
		}

		summary := &repository.TransactionSummary{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			OrderStatus: string(order.Status),
			FinalAmount: order.FinalAmount,
			CreatedAt:   order.CreatedAt,
		}
		for _, p := range s.payments {
			if p.OrderID == order.ID {
				paymentID, status, method := p.ID, string(p.Status), string(p.Method)
				summary.PaymentID = &paymentID
				summary.PaymentStatus = &status
				summary.Method = &method
				break
			}
		}
		if invoice, ok := s.invoices[order.ID]; ok {
			invoiceID, status := invoice.ID, string(invoice.Status)
			summary.InvoiceID = &invoiceID
			summary.InvoiceStatus = &status
		}
		var titles []string
		for _, item := range order.Items {
			if course, ok := s.courses[item.CourseID]; ok {
				titles = append(titles, course.Title)
			}
		}
		sort.Strings(titles)
		summary.CourseTitles = titles

		matched = append(matched, summary)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderID > matched[j].OrderID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}
