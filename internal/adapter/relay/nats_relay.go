package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/V4T54L/alert-feed/internal/domain"
)

const DefaultSubject = "alerts.ingested"

// Publisher is the subset of *nats.Conn the relay uses.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSRelay mirrors persisted events onto a NATS subject.
type NATSRelay struct {
	conn    Publisher
	subject string
	logger  *slog.Logger
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("alert-feed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSRelay creates a relay publishing to subject.
func NewNATSRelay(conn Publisher, subject string, logger *slog.Logger) *NATSRelay {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSRelay{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "nats_relay"),
	}
}

// Publish sends the already-encoded event. The event ID travels as the
// message ID header so JetStream consumers can deduplicate.
func (r *NATSRelay) Publish(ctx context.Context, event domain.Event, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(r.subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Alert-Type", event.Type)

	if err := r.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.ID, r.subject, err)
	}

	r.logger.Debug("Relayed event", "event_id", event.ID, "subject", r.subject)
	return nil
}
