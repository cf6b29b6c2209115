package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	natsclient "github.com/civicdesk/chatflow/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient  *natsclient.Client
	redisClient *redis.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(natsClient *natsclient.Client, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		natsClient:  natsClient,
		redisClient: redisClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.redisClient == nil || h.redisClient.Ping(ctx).Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "Redis not reachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
