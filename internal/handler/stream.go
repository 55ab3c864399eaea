package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/internal/middleware"
	"github.com/relaymesh/messaging-relay/internal/realtime"
	"github.com/relaymesh/messaging-relay/internal/service"
	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

const streamHeartbeat = 30 * time.Second

// StreamHandler bridges realtime room events to SSE connections. Room
// membership is subscription state; the core only derives room names.
type StreamHandler struct {
	query  *service.Query
	fanout *realtime.Fanout
	logger *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(query *service.Query, fanout *realtime.Fanout, log *logger.Logger) *StreamHandler {
	return &StreamHandler{query: query, fanout: fanout, logger: log}
}

// Conversation handles GET /api/v1/conversations/{id}/stream, pushing the
// conversation room's events until the client disconnects.
func (h *StreamHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID := middleware.GetOperatorID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Ownership check reuses the windowed read path with a zero window.
	if _, err := h.query.ListMessages(ctx, operatorID, conversationID, 1, time.Time{}); err != nil {
		if errors.Is(err, service.ErrNotOwned) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "stream setup failed")
		return
	}

	h.stream(w, r, realtime.ConversationRoom(conversationID))
}

// Inbox handles GET /api/v1/stream, pushing the operator's owner-room
// events (conversation list updates and new conversations).
func (h *StreamHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetOperatorID(r.Context())
	h.stream(w, r, realtime.OwnerRoom(operatorID))
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request, room string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events := make(chan realtime.Envelope, 64)
	sub, err := h.fanout.Subscribe(room, func(env realtime.Envelope) {
		select {
		case events <- env:
		default:
			// Slow consumer: drop rather than block the fanout.
		}
	})
	if err != nil {
		h.logger.Error("room subscribe failed", zap.String("room", room), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stream setup failed")
		return
	}
	defer sub.Unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{"room": room})

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case env := <-events:
			sendSSEEvent(w, flusher, env.Event, env.Data)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]any{"timestamp": time.Now().UTC()})
		}
	}
}
