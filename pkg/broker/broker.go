package broker

import (
	"context"
	"time"
)

// PubAck is the broker acknowledgement for a persisted publish
type PubAck struct {
	Stream    string
	Seq       uint64
	Duplicate bool
}

// DeliveryMetadata describes where a delivery sits in its stream
type DeliveryMetadata struct {
	Stream       string
	Consumer     string
	StreamSeq    uint64
	ConsumerSeq  uint64
	NumDelivered uint64
}

// Delivery is a single JetStream message delivery
type Delivery interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
	InProgress() error
	Metadata() (*DeliveryMetadata, error)
}

// PullConsumer fetches message batches from a durable pull consumer
type PullConsumer interface {
	Fetch(batch int, maxWait time.Duration) ([]Delivery, error)
	Unsubscribe() error
}

// ConsumerInfo is the consumer state the library consumes
type ConsumerInfo struct {
	Name                 string
	NumPending           uint64
	DeliveredConsumerSeq uint64
}

// OrderedConsumer iterates deliveries of an ephemeral ordered consumer
// in stream-sequence order
type OrderedConsumer interface {
	Next(ctx context.Context) (Delivery, error)
	Info() (*ConsumerInfo, error)
	Unsubscribe() error
}

// Subscription is a plain (non-JetStream) subscription
type Subscription interface {
	NextMsg(timeout time.Duration) ([]byte, error)
	Unsubscribe() error
}

// Conn is the core connection surface the library consumes
type Conn interface {
	IsClosed() bool
	Subscribe(subject string) (Subscription, error)
}

// StreamConfig holds the caps applied when a missing stream is created
type StreamConfig struct {
	Name       string
	Subjects   []string
	MaxBytes   int64
	MaxMsgSize int32
}

// Stream is the JetStream surface the library consumes
type Stream interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) (*PubAck, error)
	PullSubscribe(subject, durable string) (PullConsumer, error)
	SubscribeOrdered(subject string) (OrderedConsumer, error)
	StreamNameBySubject(subject string) (string, error)
	AddStream(cfg StreamConfig) error
	DeleteConsumer(stream, consumer string) error
}
