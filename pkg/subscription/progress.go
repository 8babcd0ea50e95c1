package subscription

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/metrics"
)

// progressReporter periodically signals the broker that the in-flight
// delivery is still being worked on, so slow handlers stay inside the
// ack-wait window (default AckWait is 30s, the reporter fires every 15s)
type progressReporter struct {
	interval time.Duration
	consumer string
	logger   zerolog.Logger
	stopCh   chan struct{}
}

func newProgressReporter(interval time.Duration, consumer string, logger zerolog.Logger) *progressReporter {
	return &progressReporter{
		interval: interval,
		consumer: consumer,
		logger:   logger,
	}
}

// start begins periodic signalling for delivery. Must be paired with a
// stop before the next start
func (r *progressReporter) start(delivery broker.Delivery, md *broker.DeliveryMetadata) {
	stopCh := make(chan struct{})
	r.stopCh = stopCh

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-time.After(r.interval):
				if err := delivery.InProgress(); err != nil {
					// Keep signalling; the pull loop owns terminal decisions
					r.logger.Debug().
						Err(err).
						Uint64("seq", md.StreamSeq).
						Msg("Failed to send in-progress signal")
					continue
				}
				metrics.HeartbeatsSent.WithLabelValues(r.consumer).Inc()
				r.logger.Debug().
					Uint64("seq", md.StreamSeq).
					Str("stream", md.Stream).
					Msg("Sent in-progress signal for message")
			}
		}
	}()
}

// stop cancels the reporting task; subsequent calls are no-ops
func (r *progressReporter) stop() {
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
}
