package subscription

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/metrics"
)

const (
	// DefaultMaxRetries is the redelivery limit applied when Config
	// leaves MaxRetries at zero
	DefaultMaxRetries = 3
	// UnboundedRetries disables the redelivery limit
	UnboundedRetries = -1
	// DefaultPullWait is how long a single pull waits for a message
	DefaultPullWait = 5 * time.Second
	// DefaultReportInterval is the in-progress heartbeat period
	DefaultReportInterval = 15 * time.Second
)

// Handler processes one incoming message. A non-nil error sends the
// delivery back through the retry/termination state machine
type Handler func(ctx context.Context, msg *message.Incoming) error

// Config describes a durable subscription
type Config struct {
	// Subject is the bare subject; the store prefix is applied on
	// construction
	Subject string
	// ConsumerName names the durable consumer whose cursor survives
	// restarts
	ConsumerName string
	// Handlers maps message types to handlers; messages of other types
	// are acked and ignored
	Handlers map[string]Handler
	// MaxRetries bounds redeliveries (0 means DefaultMaxRetries,
	// UnboundedRetries disables the bound). Deliveries beyond the bound
	// are terminated without invoking a handler
	MaxRetries int
	// DeadLetterSubject, when set, receives the raw payload of
	// terminated messages. Bare; prefixed on construction
	DeadLetterSubject string
	// PullWait overrides DefaultPullWait
	PullWait time.Duration
	// ReportInterval overrides DefaultReportInterval
	ReportInterval time.Duration
}

// Subscription is a durable pull loop: it fetches one message at a
// time, dispatches it to a typed handler under a progress heartbeat,
// and settles every delivery with exactly one of ack, nak or term
type Subscription struct {
	conn          broker.Conn
	js            broker.Stream
	subjectPrefix string
	subject       string
	consumerName  string
	handlers      map[string]Handler
	maxRetries    int // <= 0 means unbounded
	deadLetter    string
	pullWait      time.Duration
	interval      time.Duration
	logger        zerolog.Logger

	active  atomic.Bool
	started atomic.Bool
	done    chan struct{}
}

// New creates a subscription; the pull loop starts on Start
func New(conn broker.Conn, js broker.Stream, subjectPrefix string, cfg Config) *Subscription {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}
	pullWait := cfg.PullWait
	if pullWait == 0 {
		pullWait = DefaultPullWait
	}
	interval := cfg.ReportInterval
	if interval == 0 {
		interval = DefaultReportInterval
	}
	deadLetter := ""
	if cfg.DeadLetterSubject != "" {
		deadLetter = subjectPrefix + cfg.DeadLetterSubject
	}

	return &Subscription{
		conn:          conn,
		js:            js,
		subjectPrefix: subjectPrefix,
		subject:       cfg.Subject,
		consumerName:  cfg.ConsumerName,
		handlers:      cfg.Handlers,
		maxRetries:    maxRetries,
		deadLetter:    deadLetter,
		pullWait:      pullWait,
		interval:      interval,
		logger: log.WithComponent("subscription").With().
			Str("consumer", cfg.ConsumerName).
			Str("subject", subjectPrefix+cfg.Subject).
			Logger(),
		done: make(chan struct{}),
	}
}

// Start spawns the pull loop. Only the first call has an effect
func (s *Subscription) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.active.Store(true)
	go s.run()
}

// Stop deactivates the loop and waits for it to drain. The in-flight
// handler, if any, runs to completion first. Safe to call after the
// loop exited on its own, and safe to call repeatedly
func (s *Subscription) Stop() {
	s.active.Store(false)
	if s.started.Load() {
		<-s.done
	}
}

func (s *Subscription) run() {
	defer close(s.done)

	pull, err := s.js.PullSubscribe(s.subjectPrefix+s.subject, s.consumerName)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open pull subscription")
		return
	}
	reporter := newProgressReporter(s.interval, s.consumerName, s.logger)

	for !s.conn.IsClosed() && s.active.Load() {
		deliveries, err := pull.Fetch(1, s.pullWait)
		if err != nil {
			switch {
			case broker.IsTimeout(err):
				s.logger.Debug().
					Dur("pull_wait", s.pullWait).
					Msg("No messages arrived during the pull wait, re-arming")
				continue
			case broker.IsConnectionClosed(err):
				s.logger.Info().Msg("Connection closed, stopping subscription")
				return
			default:
				s.logger.Error().Err(err).Msg("Pull failed, stopping subscription")
				return
			}
		}
		if len(deliveries) == 0 {
			continue
		}
		if exit := s.handleDelivery(deliveries[0], reporter); exit {
			return
		}
	}
}

// handleDelivery runs the per-message state machine. The returned bool
// requests a loop exit (connection gone, rely on redelivery)
func (s *Subscription) handleDelivery(delivery broker.Delivery, reporter *progressReporter) bool {
	md, err := delivery.Metadata()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read delivery metadata")
		if s.conn.IsClosed() {
			return true
		}
		s.nak(delivery, 0)
		return false
	}

	// Over-delivered messages are terminated without a handler attempt
	if s.overDelivered(md) {
		s.terminate(delivery, md)
		return false
	}

	reporter.start(delivery, md)
	defer reporter.stop()

	msg, err := message.FromDelivery(s.subjectPrefix, delivery, s.maxRetries)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Uint64("seq", md.StreamSeq).
			Msg("Failed to decode message")
		if s.conn.IsClosed() {
			return true
		}
		s.nak(delivery, md.StreamSeq)
		return false
	}

	handler, ok := s.handlers[msg.Type]
	if !ok {
		s.logger.Debug().
			Str("type", msg.Type).
			Str("stream", md.Stream).
			Str("message", msg.String()).
			Msg("Ignoring message, no handler for type")
		return s.ack(delivery, md)
	}

	s.logger.Debug().
		Str("type", msg.Type).
		Str("message", msg.String()).
		Msg("Calling handler for message")

	timer := metrics.NewTimer()
	err = handler(context.Background(), msg)
	timer.ObserveDurationVec(metrics.HandlerDuration, msg.Type)

	if err != nil {
		if broker.IsConnectionClosed(err) {
			s.logger.Warn().
				Err(err).
				Uint64("seq", md.StreamSeq).
				Msg("Connection closed while handling message, stopping subscription")
			return true
		}
		s.logger.Warn().
			Err(err).
			Uint64("seq", md.StreamSeq).
			Str("type", msg.Type).
			Msg("Failed to handle message")
		if s.conn.IsClosed() {
			return true
		}
		if msg.MarkedForTermination() {
			s.terminate(delivery, md)
		} else {
			s.nak(delivery, md.StreamSeq)
		}
		return false
	}

	if msg.MarkedForTermination() {
		s.terminate(delivery, md)
		return false
	}
	return s.ack(delivery, md)
}

func (s *Subscription) overDelivered(md *broker.DeliveryMetadata) bool {
	if s.maxRetries <= 0 {
		return false
	}
	return md.NumDelivered > uint64(s.maxRetries)
}

func (s *Subscription) ack(delivery broker.Delivery, md *broker.DeliveryMetadata) bool {
	if err := delivery.Ack(); err != nil {
		if broker.IsConnectionClosed(err) {
			s.logger.Warn().
				Err(err).
				Uint64("seq", md.StreamSeq).
				Msg("Connection closed while acking message, stopping subscription")
			return true
		}
		s.logger.Warn().Err(err).Uint64("seq", md.StreamSeq).Msg("Failed to ack message")
		return false
	}
	metrics.MessagesAcked.WithLabelValues(s.consumerName).Inc()
	return false
}

func (s *Subscription) nak(delivery broker.Delivery, seq uint64) {
	if err := delivery.Nak(); err != nil {
		s.logger.Warn().Err(err).Uint64("seq", seq).Msg("Failed to nak message")
		return
	}
	metrics.MessagesNaked.WithLabelValues(s.consumerName).Inc()
}

// terminate removes the delivery from redelivery and, when configured,
// republishes the raw payload to the dead-letter subject
func (s *Subscription) terminate(delivery broker.Delivery, md *broker.DeliveryMetadata) {
	if err := delivery.Term(); err != nil {
		s.logger.Warn().
			Err(err).
			Uint64("seq", md.StreamSeq).
			Msg("Failed to terminate message, the broker may redeliver it")
		return
	}
	metrics.MessagesTerminated.WithLabelValues(s.consumerName).Inc()

	event := s.logger.Warn().
		Uint64("seq", md.StreamSeq).
		Str("stream", md.Stream)
	if s.overDelivered(md) {
		event = event.
			Uint64("attempt", md.NumDelivered).
			Int("max_retries", s.maxRetries)
	}
	event.Msg("Giving up on processing message")

	if s.deadLetter == "" {
		return
	}
	target := s.deadLetter + "." + strings.TrimPrefix(delivery.Subject(), s.subjectPrefix)
	s.logger.Info().
		Uint64("seq", md.StreamSeq).
		Str("dead_letter_subject", target).
		Msg("Sending message to dead letter subject")
	if _, err := s.js.Publish(context.Background(), target, delivery.Data(), ""); err != nil {
		// A dead-letter outage must not block handler-side progress
		s.logger.Error().
			Err(err).
			Uint64("seq", md.StreamSeq).
			Str("dead_letter_subject", target).
			Msg("Failed to publish message to dead letter subject")
		return
	}
	metrics.DeadLettersPublished.WithLabelValues(s.consumerName).Inc()
}
