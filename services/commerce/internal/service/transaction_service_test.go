package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/common/logger"
	"github.com/kyungseok/course-commerce/services/commerce/internal/domain"
	"github.com/kyungseok/course-commerce/services/commerce/internal/service"
)

func TestTransactionListing(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(1, 100_00, 0, false)
	f.seedCourse(2, 60_00, 0, false)
	transactions := service.NewTransactionQueryService(f.store.Transactions(), logger.NewTestLogger())
	ctx := context.Background()

	// buyer 7: 완료된 주문 1건, buyer 8: 대기 중 주문 1건
	_, checkout := f.checkout(t, 7, 1)
	require.NoError(t, f.deliver(t, "evt_1", service.EventTypeCheckoutSessionCompleted, checkout.SessionID))
	f.checkout(t, 8, 2)

	t.Run("buyer sees only own transactions", func(t *testing.T) {
		page, err := transactions.List(ctx, service.TransactionQuery{BuyerID: 7})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(7), page.Items[0].BuyerID)
		assert.Equal(t, string(domain.OrderStatusCompleted), page.Items[0].OrderStatus)
		require.NotNil(t, page.Items[0].PaymentStatus)
		assert.Equal(t, string(domain.PaymentStatusCompleted), *page.Items[0].PaymentStatus)
		require.NotNil(t, page.Items[0].InvoiceStatus)
		assert.Equal(t, string(domain.InvoiceStatusPaid), *page.Items[0].InvoiceStatus)
		assert.Equal(t, []string{"course-1"}, page.Items[0].CourseTitles)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		page, err := transactions.List(ctx, service.TransactionQuery{Admin: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("status filter applies", func(t *testing.T) {
		page, err := transactions.List(ctx, service.TransactionQuery{
			Admin:  true,
			Status: string(domain.OrderStatusPending),
		})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(8), page.Items[0].BuyerID)
	})

	t.Run("pagination clamps and reports totals", func(t *testing.T) {
		page, err := transactions.List(ctx, service.TransactionQuery{
			Admin:    true,
			Page:     1,
			PageSize: 1,
		})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, 1, page.PageSize)

		empty, err := transactions.List(ctx, service.TransactionQuery{
			Admin: true,
			Page:  5,
		})
		require.NoError(t, err)
		assert.Empty(t, empty.Items)
		assert.Equal(t, int64(2), empty.Total)
	})

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		_, err := transactions.List(ctx, service.TransactionQuery{})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeAuthorization))
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, err := transactions.List(ctx, service.TransactionQuery{BuyerID: 7, Status: "SHIPPED"})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	})
}
