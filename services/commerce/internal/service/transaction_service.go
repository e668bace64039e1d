package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository"
	"go.uber.org/zap"
)

// TransactionQuery 거래 내역 조회 요청
type TransactionQuery struct {
	BuyerID  int64
	Admin    bool
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// TransactionPage 거래 내역 페이지
type TransactionPage struct {
	Items    []*repository.TransactionSummary `json:"items"`
	Total    int64                            `json:"total"`
	Page     int                              `json:"page"`
	PageSize int                              `json:"pageSize"`
}

// TransactionQueryService 거래 내역 조회 서비스.
// 구매자는 자신의 거래만, 관리자는 전체를 조회할 수 있다.
type TransactionQueryService interface {
	List(ctx context.Context, query TransactionQuery) (*TransactionPage, error)
}

type transactionQueryService struct {
	transactionRepo repository.TransactionRepository
	logger          *zap.Logger
}

// NewTransactionQueryService 거래 내역 조회 서비스 생성
func NewTransactionQueryService(transactionRepo repository.TransactionRepository, logger *zap.Logger) TransactionQueryService {
	return &transactionQueryService{
		transactionRepo: transactionRepo,
		logger:          logger,
	}
}

// List 거래 내역 조회
func (s *transactionQueryService) List(ctx context.Context, query TransactionQuery) (*TransactionPage, error) {
	if !query.Admin && query.BuyerID <= 0 {
		return nil, errors.New(errors.ErrCodeAuthorization, "buyer identity is required")
	}

	if query.Status != "" {
		switch domain.OrderStatus(query.Status) {
		case domain.OrderStatusPending, domain.OrderStatusCompleted,
			domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		default:
			return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
	}

	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, errors.New(errors.ErrCodeValidation, "invalid date range")
	}

	filter := repository.TransactionFilter{
		BuyerID:  query.BuyerID,
		Status:   query.Status,
		From:     query.From,
		To:       query.To,
		Page:     query.Page,
		PageSize: query.PageSize,
	}

	items, total, err := s.transactionRepo.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to list transactions", err)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	if items == nil {
		items = []*repository.TransactionSummary{}
	}

	return &TransactionPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
