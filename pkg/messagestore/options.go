package messagestore

import (
	"time"

	"github.com/zencastr/message-store/pkg/subscription"
)

type streamOptions struct {
	maxBytes   int64
	maxMsgSize int32
}

// StreamOption overrides the caps applied when EnsureStream creates a
// missing stream
type StreamOption func(*streamOptions)

// WithMaxBytesOnCreate caps the total size of a created stream
func WithMaxBytesOnCreate(maxBytes int64) StreamOption {
	return func(o *streamOptions) {
		o.maxBytes = maxBytes
	}
}

// WithMaxMsgSizeOnCreate caps a single message in a created stream
func WithMaxMsgSizeOnCreate(maxMsgSize int32) StreamOption {
	return func(o *streamOptions) {
		o.maxMsgSize = maxMsgSize
	}
}

type publishOptions struct {
	msgID   string
	timeout time.Duration
}

// PublishOption tunes a single publish
type PublishOption func(*publishOptions)

// WithMsgID sets the Nats-Msg-Id header used for broker-side dedup
func WithMsgID(msgID string) PublishOption {
	return func(o *publishOptions) {
		o.msgID = msgID
	}
}

// WithPublishTimeout overrides DefaultPublishTimeout for one attempt
func WithPublishTimeout(timeout time.Duration) PublishOption {
	return func(o *publishOptions) {
		o.timeout = timeout
	}
}

type fetchOptions struct {
	untilSeq uint64
}

// FetchOption tunes a single fetch
type FetchOption func(*fetchOptions)

// WithUntilSeq stops the fetch once a delivery's stream sequence
// exceeds the given bound (inclusive)
func WithUntilSeq(untilSeq uint64) FetchOption {
	return func(o *fetchOptions) {
		o.untilSeq = untilSeq
	}
}

// SubscriptionOption tunes a subscription built by NewSubscription
type SubscriptionOption func(*subscription.Config)

// WithMaxRetries bounds redeliveries before a message is terminated
func WithMaxRetries(maxRetries int) SubscriptionOption {
	return func(cfg *subscription.Config) {
		cfg.MaxRetries = maxRetries
	}
}

// WithUnboundedRetries disables the redelivery bound
func WithUnboundedRetries() SubscriptionOption {
	return func(cfg *subscription.Config) {
		cfg.MaxRetries = subscription.UnboundedRetries
	}
}

// WithDeadLetterSubject routes terminated messages' raw payloads to the
// given bare subject (prefixed like any other)
func WithDeadLetterSubject(subject string) SubscriptionOption {
	return func(cfg *subscription.Config) {
		cfg.DeadLetterSubject = subject
	}
}

// WithReportInterval overrides the in-progress heartbeat period
func WithReportInterval(interval time.Duration) SubscriptionOption {
	return func(cfg *subscription.Config) {
		cfg.ReportInterval = interval
	}
}

type waitForOptions struct {
	timeout time.Duration
}

// WaitForOption tunes a WaitFor call
type WaitForOption func(*waitForOptions)

// WithWaitForTimeout overrides DefaultWaitForTimeout
func WithWaitForTimeout(timeout time.Duration) WaitForOption {
	return func(o *waitForOptions) {
		o.timeout = timeout
	}
}
