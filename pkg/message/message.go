package message

import (
	"encoding/json"
	"fmt"
)

// Message is an outgoing event or command: a type, a structured data
// payload and optional metadata. Immutable once constructed
type Message struct {
	Type     string
	Data     map[string]any
	Metadata *Metadata
}

// New creates a message without metadata
func New(msgType string, data map[string]any) Message {
	return Message{Type: msgType, Data: data}
}

// NewWithMetadata creates a message carrying metadata
func NewWithMetadata(msgType string, data map[string]any, metadata *Metadata) Message {
	return Message{Type: msgType, Data: data, Metadata: metadata}
}

type wireMessage struct {
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// Encode renders the message as its UTF-8 JSON wire form
func (m Message) Encode() ([]byte, error) {
	// The metadata key is present iff metadata was attached, even when
	// it holds no fields, so Decode(Encode(m)) round-trips exactly
	wire := map[string]any{"type": m.Type, "data": m.Data}
	if m.Metadata != nil {
		wire["metadata"] = m.Metadata.toMap()
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message of type %s: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses the UTF-8 JSON wire form back into a Message
func Decode(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("failed to decode message payload: %w", err)
	}
	msg := Message{Type: wire.Type, Data: wire.Data}
	if wire.Metadata != nil {
		msg.Metadata = metadataFromMap(wire.Metadata)
	}
	return msg, nil
}

func (m Message) String() string {
	data, err := m.Encode()
	if err != nil {
		return fmt.Sprintf("message[type=%s]", m.Type)
	}
	return string(data)
}
