package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel records every payload it accepts.
type fakeChannel struct {
	id  string
	err error // returned by every Send when set

	// hang makes Send ignore ctx and block until release is closed.
	hang    bool
	release chan struct{}

	mu       sync.Mutex
	received [][]byte
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id, release: make(chan struct{})}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ctx context.Context, payload []byte) error {
	if c.hang {
		<-c.release
		return ErrChannelClosed
	}
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func (c *fakeChannel) Received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.received...)
}
