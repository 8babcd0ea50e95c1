package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/metrics"
)

// DefaultNextWait bounds the wait for each ordered-consumer delivery.
// Hitting it surfaces a timeout the store-level retry knows how to handle
const DefaultNextWait = 5 * time.Second

// Reducer consumes decoded messages during a drain.
// projection.Projection implements it
type Reducer interface {
	Handle(msgType string, msg *message.Incoming)
}

// Options tunes a single drain
type Options struct {
	// UntilSeq stops the drain once a delivery's stream sequence
	// exceeds it; 0 means unbounded
	UntilSeq uint64
	// NextWait overrides DefaultNextWait
	NextWait time.Duration
}

// Drain replays the messages on subject through the reducer using an
// ephemeral ordered consumer. The consumer is unsubscribed on every exit
// path and explicitly deleted on every exit path after its name is read
// from the consumer info; a failed info query exits without a delete.
// Some brokers retain ephemeral consumers longer than advertised, so the
// delete is issued best-effort
func Drain(ctx context.Context, js broker.Stream, subjectPrefix, subject string, reducer Reducer, opts Options) error {
	fullSubject := subjectPrefix + subject
	logger := log.WithComponent("fetch").With().Str("subject", fullSubject).Logger()
	nextWait := opts.NextWait
	if nextWait == 0 {
		nextWait = DefaultNextWait
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FetchDuration)

	sub, err := js.SubscribeOrdered(fullSubject)
	if err != nil {
		return fmt.Errorf("failed to open ordered consumer on %s: %w", fullSubject, err)
	}
	consumerName := ""
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			logger.Debug().Err(err).Msg("Failed to unsubscribe ordered consumer")
		}
		if consumerName != "" {
			deleteConsumer(js, fullSubject, consumerName, logger)
		}
	}()

	info, err := sub.Info()
	if err != nil {
		return fmt.Errorf("failed to query consumer info on %s: %w", fullSubject, err)
	}
	consumerName = info.Name

	// An absent delivered block reports as zero, so the additive form
	// covers fresh and partially-delivered consumers alike
	total := info.NumPending + info.DeliveredConsumerSeq
	if total == 0 {
		return nil
	}

	var processed uint64
	for {
		nextCtx, cancel := context.WithTimeout(ctx, nextWait)
		delivery, err := sub.Next(nextCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to read next message on %s: %w", fullSubject, err)
		}
		md, err := delivery.Metadata()
		if err != nil {
			return fmt.Errorf("failed to read delivery metadata on %s: %w", fullSubject, err)
		}
		if opts.UntilSeq > 0 && md.StreamSeq > opts.UntilSeq {
			break
		}

		msg, err := message.FromDelivery(subjectPrefix, delivery, 0)
		if err != nil {
			return err
		}
		reducer.Handle(msg.Type, msg)
		metrics.FetchMessagesProcessed.Inc()

		processed++
		if processed == total {
			break
		}
	}
	return nil
}

// deleteConsumer actively removes the ephemeral consumer. Errors are
// swallowed: the broker may have already cleaned it up, and a racing
// delete must not fail the drain
func deleteConsumer(js broker.Stream, fullSubject, consumerName string, logger zerolog.Logger) {
	stream, err := js.StreamNameBySubject(fullSubject)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to resolve stream for consumer cleanup")
		return
	}
	if err := js.DeleteConsumer(stream, consumerName); err != nil {
		logger.Debug().
			Err(err).
			Str("stream", stream).
			Str("ephemeral_consumer", consumerName).
			Msg("Failed to delete ephemeral consumer")
	}
}
