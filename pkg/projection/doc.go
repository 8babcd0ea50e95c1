/*
Package projection provides the generic reducer folded over a subject's
messages by fetch.

A Projection[T] pairs an initial accumulator with a map of per-type fold
functions. Messages of unregistered types pass through without touching the
state. Result returns whatever the folds produced so far.
*/
package projection
