package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/middleware"
	"github.com/capitalize-ai/support-inbox/internal/service"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// DeliveryProcessor runs the inbound pipeline for one webhook delivery.
type DeliveryProcessor interface {
	HandleDelivery(ctx context.Context, payload *whatsapp.WebhookPayload) (*service.Result, error)
}

// WebhookHandler serves the provider's webhook endpoint.
type WebhookHandler struct {
	processor   DeliveryProcessor
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(processor DeliveryProcessor, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:   processor,
		verifyToken: verifyToken,
		logger:      log.Component("webhook"),
	}
}

// Verify handles GET /webhook, the provider's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if h.verifyToken == "" || mode != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("Webhook verification rejected", zap.String("mode", mode))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	h.logger.Info("Webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// Receive handles POST /webhook. Payloads that cannot be processed are
// acknowledged so the provider does not retry them; only pipeline failures
// answer 500 and bodies over MaxWebhookBody answer 413.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.logger)

	var payload whatsapp.WebhookPayload
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxWebhookBody)).Decode(&payload)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		log.Warn("Rejecting oversized webhook payload", zap.Int64("limit", tooLarge.Limit))
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err != nil {
		log.Warn("Ignoring malformed webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": string(service.OutcomeIgnored)})
		return
	}

	res, err := h.processor.HandleDelivery(r.Context(), &payload)
	if err != nil {
		log.Error("Webhook delivery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(res.Outcome)})
}
