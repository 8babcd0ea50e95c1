/*
Package broker defines the JetStream surface the message store consumes and
its NATS adapters.

The interfaces are deliberately narrow: publish with a dedup id, durable pull
consumers (batch fetch), ephemeral ordered consumers, stream administration
(lookup by subject, create, delete consumer), per-delivery ack/nak/term and
in-progress signalling, and plain subscriptions for wait-for. Wrap adapts an
established *nats.Conn to these interfaces; tests substitute in-package fakes.

The error classifiers (IsTimeout, IsNoStreamResponse, IsServiceUnavailable,
IsConsumerNotFound, ...) are the single place where NATS error codes are
interpreted; retriability predicates elsewhere are built from them.
*/
package broker
