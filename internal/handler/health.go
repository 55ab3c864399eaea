package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/relaymesh/messaging-relay/internal/breaker"
	"github.com/relaymesh/messaging-relay/internal/queue"
	"github.com/relaymesh/messaging-relay/internal/realtime"
	"github.com/relaymesh/messaging-relay/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store    *store.Store
	rtClient *realtime.Client
	queue    *queue.Queue
	breakers []*breaker.Breaker
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(st *store.Store, rt *realtime.Client, q *queue.Queue, breakers ...*breaker.Breaker) *HealthHandler {
	return &HealthHandler{
		store:    st,
		rtClient: rt,
		queue:    q,
		breakers: breakers,
	}
}

// Health handles GET /health, reporting queue and breaker condition.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()
	stats.RecentErrors = nil // summary only; the ring stays internal

	breakers := make([]breaker.Snapshot, 0, len(h.breakers))
	for _, b := range h.breakers {
		breakers = append(breakers, b.Stats())
	}

	status := http.StatusOK
	if stats.Health == queue.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":   stats.Health,
		"queue":    stats,
		"breakers": breakers,
	})
}

// Ready handles GET /ready, checking Postgres and NATS reachability.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.rtClient == nil || !h.rtClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
