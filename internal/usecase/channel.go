package usecase

import (
	"context"
	"errors"
)

var (
	// ErrChannelClosed is returned by a Channel whose transport session has ended.
	ErrChannelClosed = errors.New("subscriber channel closed")
	// ErrBackpressure is returned when a subscriber cannot accept a message in time.
	ErrBackpressure = errors.New("subscriber channel backpressure")
)

// Channel is one live delivery endpoint. Implementations own the underlying
// transport; Send must honour ctx and must not block past its deadline.
type Channel interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}
