/*
Package metrics provides Prometheus metrics for the message store.

The metrics package defines package-level collectors for every outcome of the
per-message ack discipline (ack, nak, term, dead-letter), publish and fetch
latencies, retry attempts, and in-progress heartbeats. Collectors are
registered at init time and exposed through the standard promhttp handler.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌───────────────────────────────────────────┐          │
	│  │         Package-Level Collectors           │          │
	│  │  - MessagesPublished / PublishDuration     │          │
	│  │  - MessagesAcked / Naked / Terminated      │          │
	│  │  - DeadLettersPublished / HeartbeatsSent   │          │
	│  │  - HandlerDuration / FetchDuration         │          │
	│  │  - RetriesTotal                            │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │              HTTP Exposure                 │          │
	│  │  metrics.Handler() → promhttp.Handler()    │          │
	│  │  Mounted by cmd/msgstore --metrics-addr    │          │
	│  └───────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FetchDuration)

Counting ack-discipline outcomes:

	metrics.MessagesAcked.WithLabelValues(consumerName).Inc()

Exposing metrics:

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/subscription: ack/nak/term, dead-letter, heartbeat and handler timing
  - pkg/fetch: drain duration and folded-message counts
  - pkg/messagestore: publish counts and latency
  - pkg/retry: per-operation retry attempts
  - cmd/msgstore: HTTP exposure via --metrics-addr

# See Also

  - Prometheus client: https://github.com/prometheus/client_golang
  - Metric naming: https://prometheus.io/docs/practices/naming/
*/
package metrics
