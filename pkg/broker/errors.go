package broker

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
)

// IsTimeout reports whether err is a broker or context wait timeout
func IsTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsConnectionClosed reports whether err means the connection is gone
func IsConnectionClosed(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed)
}

// IsBadSubscription reports whether err means the subscription was
// already unsubscribed or drained
func IsBadSubscription(err error) bool {
	return errors.Is(err, nats.ErrBadSubscription)
}

// IsNoStreamResponse reports whether the stream did not respond to a publish
func IsNoStreamResponse(err error) bool {
	return errors.Is(err, nats.ErrNoStreamResponse)
}

// IsServiceUnavailable reports whether the broker answered with a 503
func IsServiceUnavailable(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 503
}

// IsConsumerNotFound reports whether the broker answered 404 with the
// consumer-not-found err_code (10014). Arises from the ephemeral
// consumer-delete race during fetch
func IsConsumerNotFound(err error) bool {
	if errors.Is(err, nats.ErrConsumerNotFound) {
		return true
	}
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 && apiErr.ErrorCode == nats.JSErrCodeConsumerNotFound
	}
	return false
}

// IsStreamNotFound reports whether no stream covers the looked-up subject
func IsStreamNotFound(err error) bool {
	return errors.Is(err, nats.ErrStreamNotFound)
}
