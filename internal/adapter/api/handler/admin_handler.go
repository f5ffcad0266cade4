package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/usecase"
)

const healthCheckTimeout = 2 * time.Second

// AdminHandler serves health and introspection endpoints.
type AdminHandler struct {
	store    domain.Pinger
	registry *usecase.Registry
	vocab    usecase.VocabularySource
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(store domain.Pinger, registry *usecase.Registry, vocab usecase.VocabularySource, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, registry: registry, vocab: vocab, logger: logger.With("component", "admin_handler")}
}

// HealthCheck pings the event store.
// GET /health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		respondWithJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// Subscribers lists the live feed subscribers.
// GET /admin/subscribers
func (h *AdminHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	snapshot := h.registry.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for _, ch := range snapshot {
		ids = append(ids, ch.ID())
	}
	respondWithJSON(w, h.logger, http.StatusOK, struct {
		Count       int      `json:"count"`
		Subscribers []string `json:"subscribers"`
	}{Count: len(ids), Subscribers: ids})
}

// Vocabulary returns the generator vocabulary in effect.
// GET /admin/vocabulary
func (h *AdminHandler) Vocabulary(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.vocab.Vocabulary())
}
