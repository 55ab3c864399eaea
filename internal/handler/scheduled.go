package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/middleware"
	"github.com/relaymesh/messaging-relay/internal/model"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/internal/store"
	"github.com/relaymesh/messaging-relay/pkg/logger"
)

// ScheduledHandler handles scheduled message CRUD.
type ScheduledHandler struct {
	schedule *service.Schedule
	logger   *logger.Logger
}

// NewScheduledHandler creates a scheduled message handler.
func NewScheduledHandler(schedule *service.Schedule, log *logger.Logger) *ScheduledHandler {
	return &ScheduledHandler{schedule: schedule, logger: log}
}

// Create handles POST /api/v1/scheduled-messages
func (h *ScheduledHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)

	var req model.CreateScheduledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sm, err := h.schedule.Create(ctx, operatorID, &req)
	if err != nil {
		h.respondError(w, err, "failed to create scheduled message")
		return
	}

	writeJSON(w, http.StatusCreated, sm)
}

// List handles GET /api/v1/scheduled-messages
func (h *ScheduledHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)

	limit, offset := parsePagination(r, 20, 100)

	resp, err := h.schedule.List(ctx, operatorID, limit, offset)
	if err != nil {
		h.respondError(w, err, "failed to list scheduled messages")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/scheduled-messages/{id}
func (h *ScheduledHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateScheduledID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sm, err := h.schedule.Get(ctx, operatorID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scheduled message not found")
			return
		}
		h.respondError(w, err, "failed to get scheduled message")
		return
	}

	writeJSON(w, http.StatusOK, sm)
}

// Update handles PUT /api/v1/scheduled-messages/{id}. An edit cancels the
// original row and creates a replacement.
func (h *ScheduledHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateScheduledID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.CreateScheduledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sm, err := h.schedule.Update(ctx, operatorID, id, &req)
	if err != nil {
		h.respondError(w, err, "failed to update scheduled message")
		return
	}

	writeJSON(w, http.StatusOK, sm)
}

// Cancel handles DELETE /api/v1/scheduled-messages/{id}. The row is kept
// with status=cancelled, never deleted.
func (h *ScheduledHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateScheduledID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.schedule.Cancel(ctx, operatorID, id); err != nil {
		h.respondError(w, err, "failed to cancel scheduled message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduledHandler) respondError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotOwned):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
