package handler

import (
	"io"
	"net/http"

	"github.com/kyungseok/course-commerce/common/errors"
	"go.uber.org/zap"
)

// HeaderWebhookSignature 제공자 서명 헤더
const HeaderWebhookSignature = "X-Webhook-Signature"

// 제공자 재전송 폭주를 막기 위한 페이로드 상한
const maxWebhookBodyBytes = 1 << 20

// PaymentWebhook 결제 제공자 웹훅 수신.
// 서명이 유효하지 않으면 400을 반환하고 아무 것도 변경하지 않는다.
// 처리에 실패하면 5xx를 반환해 제공자가 재전송하도록 한다.
func (h *HTTPHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.respondError(w, errors.Wrap(errors.ErrCodeValidation, "failed to read request body", err))
		return
	}

	signature := r.Header.Get(HeaderWebhookSignature)

	if err := h.webhookService.HandleEvent(r.Context(), body, signature); err != nil {
		h.logger.Warn("webhook processing failed", zap.Error(err))
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
