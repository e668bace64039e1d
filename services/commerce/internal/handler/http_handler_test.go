package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/course-commerce/common/logger"
	"github.com/kyungseok/course-commerce/common/retry"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/handler"
	"github.com/kyungseok/course-commerce/services/commerce/internal/repository/memory"
	"github.com/kyungseok/course-commerce/services/commerce/internal/service"
)

const webhookSecret = "whsec_test"

func newTestServer(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()

	store := memory.NewStore()
	log := logger.NewTestLogger()

	fulfillment := service.NewFulfillmentService(
		store, store.Courses(), store.Enrollments(), store.Certificates(),
		store.Invoices(), store.Outbox(), log)
	refund := service.NewRefundService(
		store.Enrollments(), store.Certificates(), store.Invoices(), store.Outbox(), log)
	orders := service.NewOrderService(
		store, store.Orders(), store.Payments(), store.Courses(),
		store.Enrollments(), fulfillment, log)
	transactions := service.NewTransactionQueryService(store.Transactions(), log)

	provider := service.NewSimulatedProvider("https://checkout.example.com", log)
	gateways := []service.Gateway{
		service.NewDirectGateway(
			store, store.Orders(), store.Payments(), store.Enrollments(), fulfillment, "KRW", log),
		service.NewHostedCheckoutGateway(
			provider, store.Payments(), store.Enrollments(), retry.DefaultConfig(),
			"KRW", "http://localhost:8010", log),
	}

	webhook := service.NewWebhookService(
		webhookSecret, store, store.Orders(), store.Payments(),
		fulfillment, refund, nil, log)

	h := handler.NewHTTPHandler(orders, gateways, webhook, transactions, log)
	return store, h.Router()
}

func doJSON(t *testing.T, router http.Handler, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID > 0 {
		req.Header.Set(handler.HeaderUserID, fmt.Sprintf("%d", userID))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutEndpoint(t *testing.T) {
	store, router := newTestServer(t)
	store.SeedCourse(domain.Course{ID: 1, Title: "go-basics", Price: 50_00, Published: true})

	t.Run("requires identity", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/checkout", 0,
			handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodCard)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects unsupported method", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
			handler.CheckoutRequest{CourseIDs: []int64{1}, Method: "WIRE_TRANSFER"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("direct payment completes in one call", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
			handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodCard)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var result service.CheckoutResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Enrolled)
		assert.Equal(t, domain.PaymentStatusCompleted, result.Status)
		assert.Equal(t, 1, store.EnrollmentCount(7, 1))
	})

	t.Run("repeat purchase conflicts", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
			handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodCard)})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestOrderEndpoints(t *testing.T) {
	store, router := newTestServer(t)
	store.SeedCourse(domain.Course{ID: 1, Title: "go-basics", Price: 50_00, Published: true})

	rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
		handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodHostedCheckout)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var checkout service.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))
	require.NotZero(t, checkout.OrderID)
	orderPath := fmt.Sprintf("/orders/%d", checkout.OrderID)

	t.Run("owner can read the order", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, orderPath, 7, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other users cannot", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, orderPath, 8, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown order is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders/9999", 7, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("owner can cancel a pending order", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, orderPath+"/cancel", 7, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost, orderPath+"/cancel", 7, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestRetryCheckoutEndpoint(t *testing.T) {
	store, router := newTestServer(t)
	store.SeedCourse(domain.Course{ID: 1, Title: "go-basics", Price: 50_00, Published: true})

	rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
		handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodHostedCheckout)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var first service.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	retryPath := fmt.Sprintf("/orders/%d/checkout", first.OrderID)

	t.Run("owner gets a fresh session on the same payment", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, retryPath, 7, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var retried service.CheckoutResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retried))
		assert.Equal(t, first.PaymentID, retried.PaymentID)
		assert.NotEmpty(t, retried.RedirectURL)
		assert.NotEqual(t, first.SessionID, retried.SessionID)
	})

	t.Run("other users cannot re-initiate", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, retryPath, 8, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects unsupported method", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, retryPath, 7,
			handler.CheckoutRequest{Method: "WIRE_TRANSFER"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("completed order conflicts", func(t *testing.T) {
		// 최신 세션 참조를 조회한 뒤 성공 웹훅으로 주문을 완료시킨다
		payment, err := store.Payments().FindByOrderID(context.Background(), first.OrderID)
		require.NoError(t, err)
		require.NotEmpty(t, payment.ProviderSessionRef)

		body, err := json.Marshal(map[string]interface{}{
			"id":   "evt_retry_1",
			"type": service.EventTypeCheckoutSessionCompleted,
			"data": map[string]string{"sessionId": payment.ProviderSessionRef},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set(handler.HeaderWebhookSignature, service.Sign(webhookSecret, body))
		whRec := httptest.NewRecorder()
		router.ServeHTTP(whRec, req)
		require.Equal(t, http.StatusOK, whRec.Code, whRec.Body.String())

		rec := doJSON(t, router, http.MethodPost, retryPath, 7, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	store, router := newTestServer(t)
	store.SeedCourse(domain.Course{ID: 1, Title: "go-basics", Price: 50_00, Published: true})

	rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
		handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodHostedCheckout)})
	require.Equal(t, http.StatusCreated, rec.Code)

	var checkout service.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))

	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": service.EventTypeCheckoutSessionCompleted,
		"data": map[string]string{"sessionId": checkout.SessionID},
	})
	require.NoError(t, err)

	t.Run("invalid signature gets 400 and changes nothing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set(handler.HeaderWebhookSignature, "deadbeef")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, store.EnrollmentCount(7, 1))
	})

	t.Run("valid signature completes the payment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set(handler.HeaderWebhookSignature, service.Sign(webhookSecret, body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, store.EnrollmentCount(7, 1))
	})

	t.Run("success redirect reflects completion", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/checkout/success?session_id="+checkout.SessionID, 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var status service.CheckoutStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.True(t, status.Enrolled)
	})
}

func TestTransactionsEndpoint(t *testing.T) {
	store, router := newTestServer(t)
	store.SeedCourse(domain.Course{ID: 1, Title: "go-basics", Price: 50_00, Published: true})

	rec := doJSON(t, router, http.MethodPost, "/checkout", 7,
		handler.CheckoutRequest{CourseIDs: []int64{1}, Method: string(domain.PaymentMethodCard)})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("requires identity", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/transactions", 0, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("buyer listing", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/transactions", 7, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var page service.TransactionPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("admin sees all buyers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		req.Header.Set(handler.HeaderUserID, "99")
		req.Header.Set(handler.HeaderUserRole, "admin")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var page service.TransactionPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("invalid date filter is 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/transactions?from=yesterday", 7, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
