package usecase

import (
	"log/slog"
	"sync"

	"github.com/V4T54L/alert-feed/internal/adapter/metrics"
)

// Registry is the authoritative set of live subscriber channels.
// Membership is by identity; snapshots preserve registration order.
type Registry struct {
	mu      sync.RWMutex
	members map[Channel]struct{}
	order   []Channel
	logger  *slog.Logger
	metrics *metrics.FeedMetrics
}

// NewRegistry creates an empty Registry. m may be nil.
func NewRegistry(logger *slog.Logger, m *metrics.FeedMetrics) *Registry {
	return &Registry{
		members: make(map[Channel]struct{}),
		logger:  logger.With("component", "registry"),
		metrics: m,
	}
}

// Register adds ch to the live set. Registering a channel twice is a no-op.
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	if _, ok := r.members[ch]; ok {
		r.mu.Unlock()
		return
	}
	r.members[ch] = struct{}{}
	r.order = append(r.order, ch)
	n := len(r.order)
	r.mu.Unlock()

	r.observe(n)
	r.logger.Info("subscriber registered", "subscriber_id", ch.ID(), "subscribers", n)
}

// Unregister removes ch if present and reports whether it was removed.
// Removing an absent channel is not an error.
func (r *Registry) Unregister(ch Channel) bool {
	r.mu.Lock()
	if _, ok := r.members[ch]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, ch)
	for i, c := range r.order {
		if c == ch {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	n := len(r.order)
	r.mu.Unlock()

	r.observe(n)
	r.logger.Info("subscriber unregistered", "subscriber_id", ch.ID(), "subscribers", n)
	return true
}

// Snapshot returns the channels live at the moment of the call.
// The returned slice is owned by the caller.
func (r *Registry) Snapshot() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of live channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) observe(n int) {
	if r.metrics != nil {
		r.metrics.Subscribers.Set(float64(n))
	}
}
