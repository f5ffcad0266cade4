package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/V4T54L/alert-feed/internal/domain"
)

// MockEventStore is a mock implementation of domain.EventStore for testing.
type MockEventStore struct {
	mu          sync.Mutex
	Events      []domain.Event
	AppendCalls int
	AppendErr   error
	RecentErr   error
	PingErr     error
	nextID      int
}

// SetAppendErr switches append failures on (non-nil) or off (nil).
func (m *MockEventStore) SetAppendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendErr = err
}

func (m *MockEventStore) Append(ctx context.Context, event domain.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendErr != nil {
		return "", m.AppendErr
	}
	m.nextID++
	event.ID = fmt.Sprintf("evt-%d", m.nextID)
	m.Events = append(m.Events, event)
	return event.ID, nil
}

func (m *MockEventStore) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	out := make([]domain.Event, 0, limit)
	for i := len(m.Events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Events[i])
	}
	return out, nil
}

func (m *MockEventStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

// Stored returns a copy of everything appended so far.
func (m *MockEventStore) Stored() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.Events...)
}

// Calls returns how many times Append was invoked, successful or not.
func (m *MockEventStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendCalls
}
