/*
Package fetch drains a subject through a projection using an ephemeral
ordered consumer.

Drain opens an ordered consumer, computes the finite message count from the
consumer info (num_pending plus the delivered consumer sequence), folds each
delivery through the reducer in stream-sequence order, and stops at that
count or at the optional UntilSeq bound, whichever comes first. The drain is
therefore finite even if the broker keeps delivering.

Cleanup runs on every exit path, including errors and cancellation: the
subscription is unsubscribed and, once the consumer info has reported its
name, the ephemeral consumer is deleted by name, best-effort, because some
brokers retain ephemeral consumers after unsubscribe. When the consumer-info
query itself fails, no name is known and no delete is issued. The resulting consumer-not-found race on a concurrent fetch is
classified retriable by the store.
*/
package fetch
