package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Publish metrics
	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_messages_published_total",
			Help: "Total number of messages published by subject",
		},
		[]string{"subject"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_store_publish_duration_seconds",
			Help:    "Time taken to publish a message in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Retry metrics
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_retries_total",
			Help: "Total number of retry attempts by operation label",
		},
		[]string{"operation"},
	)

	// Subscription metrics
	MessagesAcked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_messages_acked_total",
			Help: "Total number of messages acknowledged by consumer",
		},
		[]string{"consumer"},
	)

	MessagesNaked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_messages_naked_total",
			Help: "Total number of messages negatively acknowledged by consumer",
		},
		[]string{"consumer"},
	)

	MessagesTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_messages_terminated_total",
			Help: "Total number of messages terminated by consumer",
		},
		[]string{"consumer"},
	)

	DeadLettersPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_dead_letters_published_total",
			Help: "Total number of messages republished to a dead-letter subject",
		},
		[]string{"consumer"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_store_handler_duration_seconds",
			Help:    "Handler execution time in seconds by message type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	HeartbeatsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_store_heartbeats_sent_total",
			Help: "Total number of in-progress heartbeats sent by consumer",
		},
		[]string{"consumer"},
	)

	// Fetch metrics
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_store_fetch_duration_seconds",
			Help:    "Time taken to drain a subject through a projection in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	FetchMessagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_store_fetch_messages_processed_total",
			Help: "Total number of messages folded through projections",
		},
	)
)

func init() {
	// Register publish metrics
	prometheus.MustRegister(MessagesPublished)
	prometheus.MustRegister(PublishDuration)

	// Register retry metrics
	prometheus.MustRegister(RetriesTotal)

	// Register subscription metrics
	prometheus.MustRegister(MessagesAcked)
	prometheus.MustRegister(MessagesNaked)
	prometheus.MustRegister(MessagesTerminated)
	prometheus.MustRegister(DeadLettersPublished)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(HeartbeatsSent)

	// Register fetch metrics
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(FetchMessagesProcessed)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
