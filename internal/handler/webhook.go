// Package handler provides HTTP handlers for the relay API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

// WebhookHandler handles inbound provider webhooks.
type WebhookHandler struct {
	ingestor    *service.Ingestor
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(ingestor *service.Ingestor, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor:    ingestor,
		verifyToken: verifyToken,
		logger:      log,
	}
}

// Verify handles GET /webhook/bot-message: the provider's subscription
// handshake echoes the challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken && h.verifyToken != "" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeError(w, http.StatusForbidden, "verification failed")
}

// Receive handles POST /webhook/bot-message. The caller always gets a fast
// 202 or a clear 4xx; downstream failures never surface as 5xx here, so
// the provider does not disable the webhook over perceived instability.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	botKey := r.URL.Query().Get("key_bot")
	if botKey == "" {
		botKey = r.Header.Get("x-bot-key")
	}

	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	taskID, err := h.ingestor.Accept(botKey, r.RemoteAddr, &payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"taskId": taskID,
			"status": "queued",
		})
	case errors.Is(err, model.ErrNotAMessage):
		// Status updates and read receipts: acknowledge, do nothing.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if rl, ok := service.AsRateLimit(err); ok {
			retryAfter := int(rl.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		h.logger.Error("webhook ingestion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingestion failed")
	}
}
