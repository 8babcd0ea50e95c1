package messagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/fetch"
	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/metrics"
	"github.com/zencastr/message-store/pkg/projection"
	"github.com/zencastr/message-store/pkg/retry"
	"github.com/zencastr/message-store/pkg/subscription"
)

const (
	// DefaultMaxBytesOnCreate caps a created stream at 1 GiB
	DefaultMaxBytesOnCreate = 1 << 30
	// DefaultMaxMsgSizeOnCreate caps a single message at 4 MiB
	DefaultMaxMsgSizeOnCreate = 1 << 22
	// DefaultPublishTimeout bounds a single publish attempt
	DefaultPublishTimeout = 60 * time.Second
	// DefaultWaitForTimeout bounds WaitFor
	DefaultWaitForTimeout = 5 * time.Second
)

// ErrWaitTimeout is returned by WaitFor when no message satisfied the
// predicate within the timeout
var ErrWaitTimeout = errors.New("timed out waiting for a message")

// Config holds the per-store configuration
type Config struct {
	// Prefix namespaces every subject (as "{prefix}.") and stream name
	// (as "{prefix}-"). A trailing dot is stripped; empty means no
	// prefixing
	Prefix string
	// CreateMissingStreams lets EnsureStream create absent streams
	// instead of failing
	CreateMissingStreams bool
}

// MessageStore is the process-scoped facade over the broker: prefixing,
// stream administration, deduplicated publish, projection fetch,
// subscription construction and wait-for
type MessageStore struct {
	conn                 broker.Conn
	js                   broker.Stream
	subjectPrefix        string
	streamPrefix         string
	createMissingStreams bool
	logger               zerolog.Logger
}

// New creates a store over already-wrapped broker interfaces
func New(conn broker.Conn, js broker.Stream, cfg Config) *MessageStore {
	prefix := strings.TrimSuffix(cfg.Prefix, ".")
	store := &MessageStore{
		conn:                 conn,
		js:                   js,
		createMissingStreams: cfg.CreateMissingStreams,
		logger:               log.WithComponent("messagestore"),
	}
	if prefix != "" {
		store.subjectPrefix = prefix + "."
		store.streamPrefix = prefix + "-"
	}
	return store
}

// Connect creates a store over an established NATS connection. The
// caller keeps ownership of the connection and must not close it while
// subscriptions are live
func Connect(nc *nats.Conn, cfg Config) (*MessageStore, error) {
	conn, js, err := broker.Wrap(nc)
	if err != nil {
		return nil, err
	}
	return New(conn, js, cfg), nil
}

// EnsureStream verifies a stream covers "{prefix}.{category}.>". When
// none does and CreateMissingStreams is set, one named
// "{prefix}-{category}" is created with the configured caps; otherwise
// the error names the expected stream. The term category comes from
// http://docs.eventide-project.org/user-guide/stream-names/#parts
func (s *MessageStore) EnsureStream(category string, opts ...StreamOption) error {
	o := streamOptions{
		maxBytes:   DefaultMaxBytesOnCreate,
		maxMsgSize: DefaultMaxMsgSizeOnCreate,
	}
	for _, opt := range opts {
		opt(&o)
	}

	streamSubject := s.subjectPrefix + category + ".>"
	name, err := s.js.StreamNameBySubject(streamSubject)
	if err == nil {
		s.logger.Info().
			Str("subject", streamSubject).
			Str("stream", name).
			Msg("Stream covering subject exists")
		return nil
	}
	if !broker.IsStreamNotFound(err) {
		return fmt.Errorf("failed to look up stream covering subject %s: %w", streamSubject, err)
	}

	newName := s.streamPrefix + category
	if !s.createMissingStreams {
		return fmt.Errorf("stream covering subject %s does not exist, please create one named %s", streamSubject, newName)
	}

	s.logger.Info().
		Str("subject", streamSubject).
		Str("stream", newName).
		Msg("Stream covering subject does not exist, creating it")
	if err := s.js.AddStream(broker.StreamConfig{
		Name:       newName,
		Subjects:   []string{streamSubject},
		MaxBytes:   o.maxBytes,
		MaxMsgSize: o.maxMsgSize,
	}); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", newName, err)
	}
	s.logger.Info().Str("stream", newName).Msg("Stream created successfully")
	return nil
}

// Publish encodes msg and publishes it to "{prefix}.{subject}",
// retrying transient transport failures with exponential backoff.
// WithMsgID enables broker-side dedup within the stream's duplicate
// window; the returned ack reports whether the id was a duplicate
func (s *MessageStore) Publish(ctx context.Context, subject string, msg message.Message, opts ...PublishOption) (*broker.PubAck, error) {
	o := publishOptions{timeout: DefaultPublishTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	fullSubject := s.subjectPrefix + subject

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PublishDuration)

	ack, err := retry.Do(ctx, func() (*broker.PubAck, error) {
		pubCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return s.js.Publish(pubCtx, fullSubject, data, o.msgID)
	}, retry.Options{
		Label:          "publish",
		MaxRetries:     3,
		InitialBackoff: 250 * time.Millisecond,
		IsRetriable: func(err error) bool {
			return broker.IsNoStreamResponse(err) || broker.IsServiceUnavailable(err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish message of type %s to %s: %w", msg.Type, fullSubject, err)
	}
	metrics.MessagesPublished.WithLabelValues(fullSubject).Inc()
	return ack, nil
}

// Fetch replays every message on "{prefix}.{subject}" through the
// projection and returns the folded state. Transient drain failures,
// including the ephemeral consumer-delete race, are retried
func Fetch[T any](ctx context.Context, s *MessageStore, subject string, proj *projection.Projection[T], opts ...FetchOption) (T, error) {
	o := fetchOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	_, err := retry.Do(ctx, func() (struct{}, error) {
		return struct{}{}, fetch.Drain(ctx, s.js, s.subjectPrefix, subject, proj, fetch.Options{
			UntilSeq: o.untilSeq,
		})
	}, retry.Options{
		Label:          "fetch",
		MaxRetries:     5,
		InitialBackoff: 5 * time.Second,
		IsRetriable: func(err error) bool {
			return broker.IsTimeout(err) ||
				broker.IsNoStreamResponse(err) ||
				broker.IsServiceUnavailable(err) ||
				broker.IsConsumerNotFound(err)
		},
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return proj.Result(), nil
}

// NewSubscription builds a durable subscription on
// "{prefix}.{subject}". The pull loop starts on Start
func (s *MessageStore) NewSubscription(subject, consumerName string, handlers map[string]subscription.Handler, opts ...SubscriptionOption) *subscription.Subscription {
	cfg := subscription.Config{
		Subject:      subject,
		ConsumerName: consumerName,
		Handlers:     handlers,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return subscription.New(s.conn, s.js, s.subjectPrefix, cfg)
}

// WaitFor subscribes to "{prefix}.{subject}" outside JetStream and
// returns the first message satisfying the predicate. A background
// timer unsubscribes on timeout, which ends the wait with ErrWaitTimeout
func (s *MessageStore) WaitFor(subject string, predicate func(message.Message) bool, opts ...WaitForOption) (message.Message, error) {
	o := waitForOptions{timeout: DefaultWaitForTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	fullSubject := s.subjectPrefix + subject
	sub, err := s.conn.Subscribe(fullSubject)
	if err != nil {
		return message.Message{}, fmt.Errorf("failed to subscribe to %s: %w", fullSubject, err)
	}

	timer := time.AfterFunc(o.timeout, func() {
		_ = sub.Unsubscribe()
	})
	defer timer.Stop()

	for {
		data, err := sub.NextMsg(o.timeout)
		if err != nil {
			_ = sub.Unsubscribe()
			if broker.IsTimeout(err) || broker.IsBadSubscription(err) {
				return message.Message{}, fmt.Errorf("%w on subject %s", ErrWaitTimeout, fullSubject)
			}
			return message.Message{}, err
		}
		msg, err := message.Decode(data)
		if err != nil {
			_ = sub.Unsubscribe()
			return message.Message{}, err
		}
		if predicate(msg) {
			timer.Stop()
			_ = sub.Unsubscribe()
			return msg, nil
		}
	}
}
