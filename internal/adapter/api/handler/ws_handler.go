package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/V4T54L/alert-feed/internal/usecase"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are discarded; anything larger is a protocol error.
	maxMessageSize = 512
)

// FeedHandler upgrades requests to WebSocket live feed subscriptions.
type FeedHandler struct {
	ctx      context.Context
	registry *usecase.Registry
	logger   *slog.Logger
	buffer   int
	upgrader websocket.Upgrader
}

// NewFeedHandler creates a FeedHandler. Connections are closed when ctx is done.
func NewFeedHandler(ctx context.Context, registry *usecase.Registry, logger *slog.Logger, buffer int, checkOrigin func(*http.Request) bool) *FeedHandler {
	return &FeedHandler{
		ctx:      ctx,
		registry: registry,
		logger:   logger.With("component", "ws_feed"),
		buffer:   buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type wsSubscriber struct {
	*outbox
	conn *websocket.Conn
}

// ServeHTTP registers the connection for its whole lifetime and unregisters it
// once the peer goes away.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	sub := &wsSubscriber{outbox: newOutbox(h.buffer), conn: conn}
	h.registry.Register(sub)
	h.logger.Debug("WebSocket client connected", "subscriber_id", sub.ID(), "remote_addr", r.RemoteAddr)

	go sub.writePump(h.ctx)
	sub.readPump(h.logger)

	h.registry.Unregister(sub)
	sub.Close()
	conn.Close()
	h.logger.Debug("WebSocket client disconnected", "subscriber_id", sub.ID())
}

// readPump only detects disconnection and keeps the read deadline fresh.
func (s *wsSubscriber) readPump(logger *slog.Logger) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket unexpected close", "subscriber_id", s.ID(), "error", err)
			}
			return
		}
	}
}

// writePump writes one text frame per event and pings the peer.
func (s *wsSubscriber) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.Close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			if s.Dropped() {
				s.writeClose(websocket.ClosePolicyViolation, "subscriber dropped")
			}
			return

		case <-ctx.Done():
			s.Close()
			s.writeClose(websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (s *wsSubscriber) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
