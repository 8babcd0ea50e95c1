/*
Package retry provides a generic exponential-backoff wrapper with a
caller-supplied retriability predicate.

Do runs the operation, consults IsRetriable on failure, and sleeps a doubling
backoff between attempts (pure exponential, no jitter). Non-retriable errors
and the final attempt's error surface unchanged; the backoff sleep inherits
the caller's context, so cancellation wins over the wait.

The message store wraps publishes (3 attempts from 250ms, no-stream-response
and 503 retriable) and fetches (5 attempts from 5s, additionally timeouts and
the consumer-not-found race) in this helper.
*/
package retry
