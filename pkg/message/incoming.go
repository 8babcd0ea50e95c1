package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zencastr/message-store/pkg/broker"
)

// Incoming is a message decoded from a broker delivery. On top of the
// wire fields it carries the stream sequence, the subject with the
// configured prefix stripped, and the attempt bookkeeping a handler can
// inspect to decide whether to give up
type Incoming struct {
	Type    string
	Data    map[string]any
	Subject string
	Seq     uint64

	Metadata *Metadata

	// IsLastAttempt is num_delivered >= maxRetries when a retry limit is
	// configured, nil otherwise. It may lag the broker: redeliveries
	// caused by ack-wait timeouts can push num_delivered past the max
	IsLastAttempt *bool

	terminate bool
}

// MarkForTermination marks the message for termination upon handler
// completion. The subscription then terms instead of acking
func (m *Incoming) MarkForTermination() {
	m.terminate = true
}

// MarkedForTermination reports whether a handler gave up on the message
func (m *Incoming) MarkedForTermination() bool {
	return m.terminate
}

// FromDelivery decodes a broker delivery into an Incoming message.
// subjectPrefix is stripped from the delivery subject; maxRetries <= 0
// means unbounded and leaves IsLastAttempt nil
func FromDelivery(subjectPrefix string, delivery broker.Delivery, maxRetries int) (*Incoming, error) {
	md, err := delivery.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery metadata: %w", err)
	}
	parsed, err := Decode(delivery.Data())
	if err != nil {
		return nil, err
	}

	incoming := &Incoming{
		Type:     parsed.Type,
		Data:     parsed.Data,
		Subject:  strings.TrimPrefix(delivery.Subject(), subjectPrefix),
		Seq:      md.StreamSeq,
		Metadata: parsed.Metadata,
	}
	if maxRetries > 0 {
		last := md.NumDelivered >= uint64(maxRetries)
		incoming.IsLastAttempt = &last
	}
	return incoming, nil
}

func (m *Incoming) String() string {
	view := map[string]any{
		"type":    m.Type,
		"data":    m.Data,
		"subject": m.Subject,
		"seq":     m.Seq,
	}
	if m.Metadata != nil {
		view["metadata"] = m.Metadata.toMap()
	}
	if m.IsLastAttempt != nil {
		view["isLastAttempt"] = *m.IsLastAttempt
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Sprintf("incoming[type=%s seq=%d]", m.Type, m.Seq)
	}
	return string(data)
}
