/*
Package subscription implements the durable pull subscription runtime of the
message store.

A Subscription owns one background pull loop fetching batches of exactly one
message, so the handler is the unit of concurrency and every ack-discipline
decision stays local to the in-flight delivery. While a handler runs, a
progress reporter heartbeats the broker so slow handlers do not fall out of
the ack-wait window and get spuriously redelivered.

# Architecture

	┌───────────────── SUBSCRIPTION RUNTIME ───────────────────┐
	│                                                           │
	│  Start() ──► pull loop (goroutine)                        │
	│                │  fetch(batch=1, wait=5s)                 │
	│                │   ├─ timeout ──────────► re-arm          │
	│                │   ├─ conn closed ──────► exit loop       │
	│                │   └─ delivery                            │
	│                ▼                                          │
	│        per-message state machine                          │
	│                                                           │
	│   Received ──► over-delivered? ──► Term (+dead-letter)    │
	│       │                                                   │
	│       ▼  heartbeat every 15s                              │
	│   Dispatched ─► handler ok ───────► Ack                   │
	│       │         marked for term ──► Term (+dead-letter)   │
	│       │         handler error ────► Nak (redeliver)       │
	│       │         conn closed ──────► exit loop, no signal  │
	│       ▼                                                   │
	│   reporter.stop() in all paths                            │
	└───────────────────────────────────────────────────────────┘

Exactly one of ack, nak or term settles every delivery, except on the
connection-closed exit where nothing is sent and the broker redelivers after
whoever restarts the subscription reconnects.

# Usage

	sub := store.NewSubscription("orders", "orders-processor",
		map[string]subscription.Handler{
			"OrderPlaced": func(ctx context.Context, msg *message.Incoming) error {
				return process(msg.Data)
			},
		},
		messagestore.WithDeadLetterSubject("orders-dlq"),
	)
	sub.Start()
	defer sub.Stop()

A handler that wants the broker to stop redelivering a poison message calls
msg.MarkForTermination() and returns; the delivery is terminated instead of
acked and, when configured, its raw payload is republished under the
dead-letter subject.

# Integration Points

This package integrates with:

  - pkg/broker: pull consumers, per-delivery ack/nak/term/in-progress
  - pkg/message: payload decoding and termination marking
  - pkg/messagestore: construction with the store's subject prefix
  - pkg/metrics: ack-discipline counters, handler timing, heartbeats
*/
package subscription
