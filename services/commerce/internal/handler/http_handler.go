package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/service"
	"go.uber.org/zap"
)

// 요청자 식별 헤더. 인증 게이트웨이가 검증을 마친 뒤 채워 준다고 가정한다.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	roleAdmin = "admin"
)

// CheckoutRequest 결제 개시 요청
type CheckoutRequest struct {
	CourseIDs      []int64 `json:"courseIds"`
	Method         string  `json:"method"`
	BillingAddress string  `json:"billingAddress"`
}

// HTTPHandler 커머스 HTTP 핸들러
type HTTPHandler struct {
	orderService       service.OrderService
	gateways           map[domain.PaymentMethod]service.Gateway
	webhookService     service.WebhookService
	transactionService service.TransactionQueryService
	logger             *zap.Logger
}

// NewHTTPHandler 커머스 HTTP 핸들러 생성
func NewHTTPHandler(
	orderService service.OrderService,
	gateways []service.Gateway,
	webhookService service.WebhookService,
	transactionService service.TransactionQueryService,
	logger *zap.Logger,
) *HTTPHandler {
	byMethod := make(map[domain.PaymentMethod]service.Gateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}
	return &HTTPHandler{
		orderService:       orderService,
		gateways:           byMethod,
		webhookService:     webhookService,
		transactionService: transactionService,
		logger:             logger,
	}
}

// Router 라우터 구성
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Post("/checkout", h.Checkout)
	r.Get("/checkout/success", h.CheckoutSuccess)
	r.Get("/checkout/cancel", h.CheckoutCancel)

	r.Get("/orders/{orderID}", h.GetOrder)
	r.Post("/orders/{orderID}/checkout", h.RetryCheckout)
	r.Post("/orders/{orderID}/cancel", h.CancelOrder)

	r.Get("/transactions", h.ListTransactions)

	r.Post("/webhooks/payment", h.PaymentWebhook)

	return r
}

// Health 헬스 체크
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Checkout 주문 생성과 결제 개시.
// 무료 강의만 담긴 요청은 주문 없이 바로 등록되고, 그 외에는 결제 수단에 따라
// 동기 완료 또는 호스팅 체크아웃 리다이렉트로 이어진다.
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	buyerID, err := h.requireUser(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.Wrap(errors.ErrCodeValidation, "invalid request body", err))
		return
	}

	method := domain.PaymentMethod(req.Method)
	if req.Method == "" {
		method = domain.PaymentMethodHostedCheckout
	}
	gateway, ok := h.gateways[method]
	if !ok {
		h.respondError(w, errors.New(errors.ErrCodeValidation, "unsupported payment method"))
		return
	}

	result, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderCommand{
		BuyerID:        buyerID,
		CourseIDs:      req.CourseIDs,
		BillingAddress: req.BillingAddress,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if result.Order == nil {
		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"enrolled":    true,
			"enrollments": result.FreeEnrollments,
		})
		return
	}

	checkout, err := gateway.Initiate(r.Context(), result.Order)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkout)
}

// RetryCheckout 기존 PENDING 주문의 결제 재개시.
// 제공자 호출 실패 등으로 개시가 중단된 주문에 대해 새 체크아웃 세션을 받는다.
// 결제 수단을 생략하면 호스팅 체크아웃으로 개시한다.
func (h *HTTPHandler) RetryCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID, err := h.requireUser(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	orderID, err := parseID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		h.respondError(w, errors.Wrap(errors.ErrCodeValidation, "invalid request body", err))
		return
	}

	method := domain.PaymentMethod(req.Method)
	if req.Method == "" {
		method = domain.PaymentMethodHostedCheckout
	}
	gateway, ok := h.gateways[method]
	if !ok {
		h.respondError(w, errors.New(errors.ErrCodeValidation, "unsupported payment method"))
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), buyerID, orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if order.Status != domain.OrderStatusPending {
		h.respondError(w, errors.New(errors.ErrCodeConflict, "order is not pending"))
		return
	}

	checkout, err := gateway.Initiate(r.Context(), order)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, checkout)
}

// GetOrder 주문 조회
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, err := h.requireUser(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	orderID, err := parseID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), buyerID, orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// CancelOrder 주문 취소
func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, err := h.requireUser(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	orderID, err := parseID(chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.orderService.CancelOrder(r.Context(), buyerID, orderID); err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(domain.OrderStatusCancelled)})
}

// CheckoutSuccess 제공자 성공 리다이렉트.
// 표시 용도의 읽기 전용 엔드포인트이며, 실제 이행은 웹훅에서만 일어난다.
func (h *HTTPHandler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionRef := r.URL.Query().Get("session_id")
	if sessionRef == "" {
		h.respondError(w, errors.New(errors.ErrCodeValidation, "session_id is required"))
		return
	}

	status, err := h.webhookService.SuccessRedirect(r.Context(), sessionRef)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// CheckoutCancel 제공자 취소 리다이렉트
func (h *HTTPHandler) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	sessionRef := r.URL.Query().Get("session_id")
	if sessionRef == "" {
		h.respondError(w, errors.New(errors.ErrCodeValidation, "session_id is required"))
		return
	}

	status, err := h.webhookService.CancelRedirect(r.Context(), sessionRef)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// ListTransactions 거래 내역 조회. 관리자는 전체를, 구매자는 자신의 거래만 본다.
func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	buyerID, err := h.requireUser(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	q := r.URL.Query()
	query := service.TransactionQuery{
		BuyerID: buyerID,
		Admin:   r.Header.Get(HeaderUserRole) == roleAdmin,
		Status:  q.Get("status"),
	}

	if query.Admin {
		if q.Get("buyerId") == "" {
			query.BuyerID = 0
		} else if id, err := parseID(q.Get("buyerId")); err == nil {
			query.BuyerID = id
		}
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.respondError(w, errors.New(errors.ErrCodeValidation, "invalid from date"))
			return
		}
		query.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.respondError(w, errors.New(errors.ErrCodeValidation, "invalid to date"))
			return
		}
		query.To = &t
	}

	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	page, err := h.transactionService.List(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (h *HTTPHandler) requireUser(r *http.Request) (int64, error) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return 0, errors.New(errors.ErrCodeAuthorization, "user identity is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeAuthorization, "invalid user identity")
	}
	return id, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeValidation, "invalid id")
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	message := err.Error()
	var domainErr *errors.DomainError
	if stderrors.As(err, &domainErr) {
		message = domainErr.Message
	}

	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeSignatureInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeAuthorization:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodePaymentProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
