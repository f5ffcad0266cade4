package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/alert-feed/internal/adapter/api/handler"
	"github.com/V4T54L/alert-feed/internal/domain"
	"github.com/V4T54L/alert-feed/internal/usecase"
)

// NewAdminRouter creates the router for metrics, health and introspection.
func NewAdminRouter(
	store domain.Pinger,
	registry *usecase.Registry,
	vocab usecase.VocabularySource,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()
	adminHandler := handler.NewAdminHandler(store, registry, vocab, logger)

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", adminHandler.HealthCheck)
	mux.HandleFunc("GET /admin/subscribers", adminHandler.Subscribers)
	mux.HandleFunc("GET /admin/vocabulary", adminHandler.Vocabulary)

	return mux
}
