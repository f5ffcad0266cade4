package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FeedMetrics holds all Prometheus metrics for the alert feed.
type FeedMetrics struct {
	EventsSubmitted     *prometheus.CounterVec
	StoreAppendDuration prometheus.Histogram
	Deliveries          *prometheus.CounterVec
	Subscribers         prometheus.Gauge
	RelayPublished      *prometheus.CounterVec
	SimulatorIterations *prometheus.CounterVec
	VocabularyReloads   prometheus.Counter
}

// NewFeedMetrics initializes the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	factory := promauto.With(reg)
	return &FeedMetrics{
		EventsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_feed",
			Subsystem: "distributor",
			Name:      "events_submitted_total",
			Help:      "Total number of submitted events by status.",
		}, []string{"status"}), // status: accepted, store_error
		StoreAppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_feed",
			Subsystem: "store",
			Name:      "append_duration_seconds",
			Help:      "Latency of store appends.",
			Buckets:   prometheus.DefBuckets,
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_feed",
			Subsystem: "distributor",
			Name:      "deliveries_total",
			Help:      "Per-subscriber delivery attempts by outcome.",
		}, []string{"outcome"}), // outcome: delivered, failed, timeout
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_feed",
			Subsystem: "registry",
			Name:      "subscribers",
			Help:      "Number of currently registered live subscribers.",
		}),
		RelayPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_feed",
			Subsystem: "relay",
			Name:      "publish_total",
			Help:      "Events mirrored to the message bus by status.",
		}, []string{"status"}),
		SimulatorIterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_feed",
			Subsystem: "simulator",
			Name:      "iterations_total",
			Help:      "Synthetic producer iterations by status.",
		}, []string{"status"}),
		VocabularyReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_feed",
			Subsystem: "simulator",
			Name:      "vocabulary_reloads_total",
			Help:      "Successful hot reloads of the generator vocabulary.",
		}),
	}
}
