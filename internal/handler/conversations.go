package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/middleware"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

// ConversationHandler handles conversation read endpoints.
type ConversationHandler struct {
	query  *service.Query
	logger *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(query *service.Query, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{query: query, logger: log}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)

	limit, offset := parsePagination(r, 20, 100)

	resp, err := h.query.ListConversations(ctx, operatorID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Messages handles GET /api/v1/conversations/{id}/messages
// Supports ?limit=N for the window size and ?before=RFC3339 for paging
// backwards; results are ascending by (created_at, id).
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, _ := parsePagination(r, 50, 200)

	var before time.Time
	if b := r.URL.Query().Get("before"); b != "" {
		parsed, err := time.Parse(time.RFC3339, b)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = parsed
	}

	resp, err := h.query.ListMessages(ctx, operatorID, conversationID, limit, before)
	if err != nil {
		if errors.Is(err, service.ErrNotOwned) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to list messages",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func parsePagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
