package handler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/V4T54L/alert-feed/internal/usecase"
)

// outbox is the usecase.Channel shared by the live feed transports. Payloads
// are queued on send and drained by the transport's writer goroutine.
type outbox struct {
	id        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Bool
}

func newOutbox(buffer int) *outbox {
	if buffer <= 0 {
		buffer = 1
	}
	return &outbox{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (o *outbox) ID() string { return o.id }

// Send queues payload, waiting at most until ctx is done. A subscriber that
// cannot keep up is closed so its transport disconnects.
func (o *outbox) Send(ctx context.Context, payload []byte) error {
	select {
	case <-o.done:
		return usecase.ErrChannelClosed
	default:
	}

	select {
	case o.send <- payload:
		return nil
	case <-o.done:
		return usecase.ErrChannelClosed
	case <-ctx.Done():
		o.dropped.Store(true)
		o.Close()
		return fmt.Errorf("%w: %w", usecase.ErrBackpressure, ctx.Err())
	}
}

// Close marks the outbox finished. send is never closed; writers stop on done.
func (o *outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Dropped reports whether the outbox was closed because the subscriber fell
// behind, as opposed to a disconnect or shutdown.
func (o *outbox) Dropped() bool {
	return o.dropped.Load()
}
