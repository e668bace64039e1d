package memory

import (
	"context"

	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
)

// 레포지토리 인터페이스별 어댑터. 인터페이스 간 메서드명이 겹치므로
// Store를 직접 노출하지 않고 위임 타입을 쓴다.

func (s *Store) Courses() repository.CourseRepository           { return courseRepo{s} }
func (s *Store) Orders() repository.OrderRepository             { return orderRepo{s} }
func (s *Store) Payments() repository.PaymentRepository         { return paymentRepo{s} }
func (s *Store) Enrollments() repository.EnrollmentRepository   { return enrollmentRepo{s} }
func (s *Store) Certificates() repository.CertificateRepository { return certificateRepo{s} }
func (s *Store) Invoices() repository.InvoiceRepository         { return invoiceRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository            { return outboxRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s} }

type courseRepo struct{ s *Store }

func (r courseRepo) FindByIDs(ctx context.Context, ids []int64) ([]*domain.Course, error) {
	return r.s.FindCoursesByIDs(ctx, ids)
}

type orderRepo struct{ s *Store }

func (r orderRepo) CreateTx(ctx context.Context, tx repository.Tx, order *domain.Order) error {
	return r.s.CreateOrderTx(ctx, tx, order)
}

func (r orderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.s.FindOrderByID(ctx, id)
}

func (r orderRepo) FindByIDTx(ctx context.Context, tx repository.Tx, id int64) (*domain.Order, error) {
	return r.s.FindOrderByIDTx(ctx, tx, id)
}

func (r orderRepo) UpdateStatusTx(ctx context.Context, tx repository.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	return r.s.UpdateOrderStatusTx(ctx, tx, id, from, to)
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	return r.s.CreatePayment(ctx, payment)
}

func (r paymentRepo) CreateTx(ctx context.Context, tx repository.Tx, payment *domain.Payment) error {
	return r.s.CreatePaymentTx(ctx, tx, payment)
}

func (r paymentRepo) FindByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	return r.s.FindPaymentByOrderID(ctx, orderID)
}

func (r paymentRepo) FindBySessionRef(ctx context.Context, ref string) (*domain.Payment, error) {
	return r.s.FindPaymentBySessionRef(ctx, ref)
}

func (r paymentRepo) FindBySessionRefForUpdateTx(ctx context.Context, tx repository.Tx, ref string) (*domain.Payment, error) {
	return r.s.FindPaymentBySessionRefForUpdateTx(ctx, tx, ref)
}

func (r paymentRepo) FindByOrderIDForUpdateTx(ctx context.Context, tx repository.Tx, orderID int64) (*domain.Payment, error) {
	return r.s.FindPaymentByOrderIDForUpdateTx(ctx, tx, orderID)
}

func (r paymentRepo) UpdateSessionRef(ctx context.Context, id int64, ref string) error {
	return r.s.UpdatePaymentSessionRef(ctx, id, ref)
}

func (r paymentRepo) UpdateStatusTx(ctx context.Context, tx repository.Tx, id int64, from, to domain.PaymentStatus) (bool, error) {
	return r.s.UpdatePaymentStatusTx(ctx, tx, id, from, to)
}

type enrollmentRepo struct{ s *Store }

func (r enrollmentRepo) CreateTx(ctx context.Context, tx repository.Tx, enrollment *domain.Enrollment) error {
	return r.s.CreateEnrollmentTx(ctx, tx, enrollment)
}

func (r enrollmentRepo) FindByBuyerAndCourse(ctx context.Context, buyerID, courseID int64) (*domain.Enrollment, error) {
	return r.s.FindEnrollment(ctx, buyerID, courseID)
}

func (r enrollmentRepo) Exists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	return r.s.EnrollmentExists(ctx, buyerID, courseID)
}

func (r enrollmentRepo) ExistsForAny(ctx context.Context, buyerID int64, courseIDs []int64) (bool, error) {
	return r.s.EnrollmentExistsForAny(ctx, buyerID, courseIDs)
}

func (r enrollmentRepo) DeleteTx(ctx context.Context, tx repository.Tx, buyerID, courseID int64) (bool, error) {
	return r.s.DeleteEnrollmentTx(ctx, tx, buyerID, courseID)
}

type certificateRepo struct{ s *Store }

func (r certificateRepo) CreateTx(ctx context.Context, tx repository.Tx, certificate *domain.Certificate) error {
	return r.s.CreateCertificateTx(ctx, tx, certificate)
}

func (r certificateRepo) Exists(ctx context.Context, buyerID, courseID int64) (bool, error) {
	return r.s.CertificateExists(ctx, buyerID, courseID)
}

func (r certificateRepo) DeleteTx(ctx context.Context, tx repository.Tx, buyerID, courseID int64) (bool, error) {
	return r.s.DeleteCertificateTx(ctx, tx, buyerID, courseID)
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) CreateTx(ctx context.Context, tx repository.Tx, invoice *domain.Invoice) error {
	return r.s.CreateInvoiceTx(ctx, tx, invoice)
}

func (r invoiceRepo) FindByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	return r.s.FindInvoiceByOrderID(ctx, orderID)
}

func (r invoiceRepo) UpdateStatusTx(ctx context.Context, tx repository.Tx, orderID int64, status domain.InvoiceStatus) (bool, error) {
	return r.s.UpdateInvoiceStatusTx(ctx, tx, orderID, status)
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) InsertTx(ctx context.Context, tx repository.Tx, event *repository.OutboxEvent) error {
	return r.s.InsertOutboxTx(ctx, tx, event)
}

func (r outboxRepo) FindPending(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	return r.s.FindPendingOutbox(ctx, limit)
}

func (r outboxRepo) MarkSent(ctx context.Context, id int64) error {
	return r.s.MarkOutboxSent(ctx, id)
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) List(ctx context.Context, filter repository.TransactionFilter) ([]*repository.TransactionSummary, int64, error) {
	return r.s.ListTransactions(ctx, filter)
}
