package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/V4T54L/alert-feed/internal/adapter/metrics"
	"github.com/V4T54L/alert-feed/internal/domain"
)

const (
	// DefaultMinInterval is the shortest sleep between iterations, in seconds.
	DefaultMinInterval = 5
	// DefaultMaxInterval is the longest sleep between iterations, in seconds.
	DefaultMaxInterval = 30

	simulatorSubmitTimeout = 30 * time.Second
)

// Submitter is the part of the Distributor the simulator depends on.
type Submitter interface {
	Submit(ctx context.Context, raw domain.NewEvent) (domain.Event, error)
}

// VocabularySource supplies the labels the simulator draws from. It may change
// between iterations (hot reload).
type VocabularySource interface {
	Vocabulary() domain.Vocabulary
}

// StaticVocabulary is a VocabularySource that never changes.
type StaticVocabulary domain.Vocabulary

// Vocabulary returns the fixed vocabulary.
func (v StaticVocabulary) Vocabulary() domain.Vocabulary { return domain.Vocabulary(v) }

// WaitFunc suspends for d or until ctx is done, whichever comes first.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SimulatorOptions tunes a Simulator. Zero values select defaults.
type SimulatorOptions struct {
	MinInterval int // whole seconds
	MaxInterval int // whole seconds
	Rand        *rand.Rand
	Wait        WaitFunc
	Metrics     *metrics.FeedMetrics
}

// Simulator is the background synthetic alert producer.
type Simulator struct {
	submitter   Submitter
	vocab       VocabularySource
	logger      *slog.Logger
	metrics     *metrics.FeedMetrics
	minInterval int
	maxInterval int
	wait        WaitFunc

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewSimulator creates a Simulator. It does nothing until Run is called.
// Leaving both interval bounds unset selects DefaultMinInterval..DefaultMaxInterval;
// any other pair is used exactly as given.
func NewSimulator(submitter Submitter, vocab VocabularySource, logger *slog.Logger, opts SimulatorOptions) (*Simulator, error) {
	if opts.MinInterval == 0 && opts.MaxInterval == 0 {
		opts.MinInterval, opts.MaxInterval = DefaultMinInterval, DefaultMaxInterval
	}
	if opts.MinInterval < 0 || opts.MaxInterval < opts.MinInterval {
		return nil, fmt.Errorf("invalid simulator interval [%d, %d]", opts.MinInterval, opts.MaxInterval)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Wait == nil {
		opts.Wait = sleepContext
	}
	return &Simulator{
		submitter:   submitter,
		vocab:       vocab,
		logger:      logger.With("component", "simulator"),
		metrics:     opts.Metrics,
		minInterval: opts.MinInterval,
		maxInterval: opts.MaxInterval,
		wait:        opts.Wait,
		rng:         opts.Rand,
	}, nil
}

// Run produces one event per iteration until ctx is cancelled. Cancellation is
// observed between iterations and during the sleep, never mid-submission.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("simulator started", "min_interval_s", s.minInterval, "max_interval_s", s.maxInterval)
	for {
		if ctx.Err() != nil {
			s.logger.Info("simulator stopped")
			return
		}

		s.RunOnce(ctx)

		if err := s.wait(ctx, s.NextInterval()); err != nil {
			s.logger.Info("simulator stopped")
			return
		}
	}
}

// RunOnce generates and submits a single event. Failures are logged, never returned.
func (s *Simulator) RunOnce(ctx context.Context) {
	raw := s.Generate()

	// Detach from ctx so shutdown cannot interrupt an append halfway.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), simulatorSubmitTimeout)
	defer cancel()

	event, err := s.submitter.Submit(submitCtx, raw)
	if err != nil {
		s.count("error")
		s.logger.Error("failed to submit simulated event, will retry next iteration", "error", err, "type", raw.Type)
		return
	}
	s.count("submitted")
	s.logger.Debug("submitted simulated event", "event_id", event.ID, "type", event.Type)
}

// Generate builds one random event from the current vocabulary.
func (s *Simulator) Generate() domain.NewEvent {
	vocab := s.vocab.Vocabulary()

	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewEvent{
		Type:        s.pick(vocab.Types),
		SourceIP:    fmt.Sprintf("%d.%d.%d.%d", s.octet(), s.octet(), s.octet(), s.octet()),
		ActionTaken: s.pick(vocab.Actions),
		Details:     map[string]any{"severity": s.pick(vocab.Severities)},
	}
}

// NextInterval draws the next sleep, in whole seconds within [min, max].
func (s *Simulator) NextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	secs := s.minInterval + s.rng.IntN(s.maxInterval-s.minInterval+1)
	return time.Duration(secs) * time.Second
}

func (s *Simulator) pick(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[s.rng.IntN(len(labels))]
}

// octet is uniform over 1..255.
func (s *Simulator) octet() int {
	return 1 + s.rng.IntN(255)
}

func (s *Simulator) count(status string) {
	if s.metrics != nil {
		s.metrics.SimulatorIterations.WithLabelValues(status).Inc()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
