package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/middleware"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

// MessageHandler handles outbound send endpoints.
type MessageHandler struct {
	sender *service.Sender
	logger *logger.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(sender *service.Sender, log *logger.Logger) *MessageHandler {
	return &MessageHandler{sender: sender, logger: log}
}

// Send handles POST /api/v1/messages/send-message. The caller waits for
// the result; storage success is reported even when upstream delivery
// fails.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sender.Send(ctx, operatorID, req.ConversationID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrNotOwned):
		writeError(w, http.StatusNotFound, "conversation not found")
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case breaker.IsOpenError(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("failed to send message",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to send message")
	}
}
