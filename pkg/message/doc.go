/*
Package message defines the wire-format value objects of the message store.

A Message is an outgoing {type, data, metadata?} triple encoded as a UTF-8
JSON object. Metadata encoding starts from the additional properties and
overlays the recognized originSubject/traceId fields; decoding is the exact
inverse, so Decode(Encode(m)) == m for every legal message.

An Incoming message is produced only by the subscription and fetch runtimes
from a broker delivery: the parsed payload plus stream sequence, the subject
with the store prefix stripped, and last-attempt bookkeeping. Handlers call
MarkForTermination to make the subscription give up (term + optional
dead-letter) instead of acking.
*/
package message
