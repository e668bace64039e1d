package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/course-commerce/common/errors"
	"github.com/kyungseok/course-commerce/services/commerce/internal/service"
)

func TestWebhookSignatureVerification(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(1, 100_00, 0, false)
	ctx := context.Background()

	_, checkout := f.checkout(t, 7, 1)
	body := webhookBody("evt_1", service.EventTypeCheckoutSessionCompleted, checkout.SessionID)

	t.Run("valid signature is accepted", func(t *testing.T) {
		err := f.webhook.HandleEvent(ctx, body, service.Sign(webhookSecret, body))
		require.NoError(t, err)
	})

	t.Run("tampered body is rejected", func(t *testing.T) {
		tampered := append([]byte(nil), body...)
		tampered[len(tampered)-2] ^= 0x01

		err := f.webhook.HandleEvent(ctx, tampered, service.Sign(webhookSecret, body))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSignatureInvalid))
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		err := f.webhook.HandleEvent(ctx, body, service.Sign("whsec_other", body))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSignatureInvalid))
	})

	t.Run("empty signature is rejected", func(t *testing.T) {
		err := f.webhook.HandleEvent(ctx, body, "")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSignatureInvalid))
	})
}

func TestWebhookToleratesUnknownInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unrecognized event type is accepted and ignored", func(t *testing.T) {
		body := webhookBody("evt_x", "customer.updated", "cs_whatever")
		err := f.webhook.HandleEvent(ctx, body, service.Sign(webhookSecret, body))
		require.NoError(t, err)
	})

	t.Run("unknown session reference is accepted and ignored", func(t *testing.T) {
		body := webhookBody("evt_y", service.EventTypeCheckoutSessionCompleted, "cs_unknown")
		err := f.webhook.HandleEvent(ctx, body, service.Sign(webhookSecret, body))
		require.NoError(t, err)
		assert.Empty(t, f.store.OutboxEventTypes())
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		body := []byte(`{not json`)
		err := f.webhook.HandleEvent(ctx, body, service.Sign(webhookSecret, body))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	})

	t.Run("missing session reference is rejected", func(t *testing.T) {
		body := webhookBody("evt_z", service.EventTypeCheckoutSessionCompleted, "")
		err := f.webhook.HandleEvent(ctx, body, service.Sign(webhookSecret, body))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	})
}
