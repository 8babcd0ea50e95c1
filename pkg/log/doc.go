/*
Package log provides structured logging for the message store using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌───────────────────────────────────────────┐          │
	│  │            Global Logger                   │          │
	│  │  - Zerolog instance                        │          │
	│  │  - Initialized via log.Init()              │          │
	│  │  - Thread-safe for concurrent use          │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │         Component Loggers                  │          │
	│  │  - WithComponent("subscription")           │          │
	│  │  - WithSubject("orders.1234")              │          │
	│  │  - WithConsumer("orders-processor")        │          │
	│  │  - WithStream("prod-orders")               │          │
	│  └───────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	import "github.com/zencastr/message-store/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	subLog := log.WithComponent("subscription")
	subLog.Debug().
		Str("subject", "orders.1234").
		Uint64("seq", 42).
		Msg("Calling handler")

Structured error logging:

	log.Logger.Warn().
		Err(err).
		Str("consumer", "orders-processor").
		Msg("Failed to handle message")

# Integration Points

This package integrates with:

  - pkg/subscription: Logs pull-loop, dispatch and ack-discipline steps
  - pkg/fetch: Logs projection drains and consumer cleanup
  - pkg/messagestore: Logs stream administration and publish retries
  - pkg/retry: Logs retry attempts and backoff waits
  - cmd/msgstore: Initializes the logger from CLI flags

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data (subject, stream, consumer, seq)
  - Log errors with .Err() for consistent error formatting

Don't:
  - Log message payloads above debug level (they may carry sensitive data)
  - Use Debug level in production

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
