package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/alert-feed/internal/usecase"
)

const sseKeepAlive = 15 * time.Second

// StreamHandler serves the live feed as Server-Sent Events. It shares the
// registry with the WebSocket feed.
type StreamHandler struct {
	ctx      context.Context
	registry *usecase.Registry
	logger   *slog.Logger
	buffer   int
}

// NewStreamHandler creates a StreamHandler. Streams end when ctx is done.
func NewStreamHandler(ctx context.Context, registry *usecase.Registry, logger *slog.Logger, buffer int) *StreamHandler {
	return &StreamHandler{
		ctx:      ctx,
		registry: registry,
		logger:   logger.With("component", "sse_feed"),
		buffer:   buffer,
	}
}

// ServeHTTP handles new client connections for the SSE stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if err := rc.Flush(); err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := newOutbox(h.buffer)
	h.registry.Register(sub)
	defer func() {
		h.registry.Unregister(sub)
		sub.Close()
		h.logger.Debug("SSE client disconnected", "subscriber_id", sub.ID())
	}()
	h.logger.Debug("SSE client connected", "subscriber_id", sub.ID(), "remote_addr", r.RemoteAddr)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-sub.done:
			return
		case msg := <-sub.send:
			if err := h.write(w, rc, "data: %s\n\n", msg); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := h.write(w, rc, ": keep-alive\n\n"); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(w http.ResponseWriter, rc *http.ResponseController, format string, args ...any) error {
	if err := rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return err
	}
	return rc.Flush()
}
