package api

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/V4T54L/alert-feed/internal/adapter/api/handler"
	"github.com/V4T54L/alert-feed/internal/adapter/api/middleware"
	"github.com/V4T54L/alert-feed/internal/pkg/config"
	"github.com/V4T54L/alert-feed/internal/usecase"
)

const bannerMessage = "Intrusion Detection System API"

// NewRouter creates and configures the public HTTP router. Live feed
// connections are closed when ctx is done.
func NewRouter(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	events handler.EventService,
	registry *usecase.Registry,
) http.Handler {
	mux := http.NewServeMux()

	eventsHandler := handler.NewEventsHandler(events, logger, cfg.MaxEventSize, cfg.RecentEventsLimit)
	feedHandler := handler.NewFeedHandler(ctx, registry, logger, cfg.SubscriberBuffer, func(r *http.Request) bool {
		return middleware.OriginAllowed(cfg.CORSAllowedOrigins, r.Header.Get("Origin"))
	})
	streamHandler := handler.NewStreamHandler(ctx, registry, logger, cfg.SubscriberBuffer)

	var create http.Handler = http.HandlerFunc(eventsHandler.Create)
	if cfg.SubmitRateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.SubmitRateLimit), cfg.SubmitRateBurst)
		create = middleware.RateLimit(limiter, logger)(create)
	}

	// Routes
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"` + bannerMessage + `"}`))
	})
	mux.HandleFunc("GET /api/logs", eventsHandler.List)
	mux.Handle("POST /api/logs", create)
	mux.Handle("GET /api/logs/ws", feedHandler)
	mux.Handle("GET /api/logs/stream", streamHandler)

	return middleware.Logging(logger)(middleware.CORS(cfg.CORSAllowedOrigins)(mux))
}
