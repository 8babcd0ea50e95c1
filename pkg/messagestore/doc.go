/*
Package messagestore is the facade of the message-store client library.

A MessageStore wraps one broker connection and gives application code three
primitives: deduplicated publish with retried transport failures, projection
fetch (replay a subject through a pure reducer), and durable subscriptions
dispatching messages to typed handlers with heartbeats, bounded retries and
dead-lettering. EnsureStream and WaitFor round out the surface.

# Architecture

	┌──────────────────── MESSAGE STORE ───────────────────────┐
	│                                                           │
	│  application                                              │
	│      │ Publish(subject, msg)      ──► retry ──► JetStream │
	│      │ Fetch[T](subject, proj)    ──► retry ──► pkg/fetch │
	│      │ NewSubscription(...)       ──► pkg/subscription    │
	│      │ EnsureStream(category)     ──► stream admin        │
	│      │ WaitFor(subject, pred)     ──► plain subscribe     │
	│      ▼                                                    │
	│  subject prefixing: "{prefix}." subjects, "{prefix}-"     │
	│  stream names; a category maps to "{prefix}.{cat}.>"      │
	└───────────────────────────────────────────────────────────┘

# Usage

	nc, _ := nats.Connect(nats.DefaultURL)
	store, err := messagestore.Connect(nc, messagestore.Config{
		Prefix:               "prod",
		CreateMissingStreams: true,
	})
	if err != nil {
		return err
	}

	if err := store.EnsureStream("orders"); err != nil {
		return err
	}

	_, err = store.Publish(ctx, "orders.1234",
		message.New("OrderPlaced", map[string]any{"total": 99}),
		messagestore.WithMsgID("order-1234-placed"))

	total, err := messagestore.Fetch(ctx, store, "orders.1234",
		projection.New(func() int { return 0 },
			map[string]projection.Handler[int]{
				"OrderPlaced": func(n int, _ *message.Incoming) int { return n + 1 },
			}))

Retriability: publishes retry on no-stream-response and 503 (3 attempts from
250ms); fetches additionally retry on timeouts and the consumer-not-found
race left behind by ephemeral consumer cleanup (5 attempts from 5s). Errors
that survive the retries surface to the caller.

# Integration Points

This package integrates with:

  - pkg/broker: connection wrapping and error classification
  - pkg/fetch, pkg/subscription, pkg/projection, pkg/message, pkg/retry
  - cmd/msgstore: the CLI drives every facade operation
*/
package messagestore
