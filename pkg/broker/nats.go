package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Wrap adapts an established NATS connection to the broker interfaces
// consumed by the library
func Wrap(nc *nats.Conn) (Conn, Stream, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	return &natsConn{nc: nc}, &natsStream{js: js}, nil
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) IsClosed() bool {
	return c.nc.IsClosed()
}

func (c *natsConn) Subscribe(subject string) (Subscription, error) {
	sub, err := c.nc.SubscribeSync(subject)
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) NextMsg(timeout time.Duration) ([]byte, error) {
	msg, err := s.sub.NextMsg(timeout)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

type natsStream struct {
	js nats.JetStreamContext
}

func (s *natsStream) Publish(ctx context.Context, subject string, data []byte, msgID string) (*PubAck, error) {
	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		// JetStream uses the Nats-Msg-Id header for dedup inside the
		// stream's duplicate window
		opts = append(opts, nats.MsgId(msgID))
	}
	ack, err := s.js.Publish(subject, data, opts...)
	if err != nil {
		return nil, err
	}
	return &PubAck{Stream: ack.Stream, Seq: ack.Sequence, Duplicate: ack.Duplicate}, nil
}

func (s *natsStream) PullSubscribe(subject, durable string) (PullConsumer, error) {
	sub, err := s.js.PullSubscribe(subject, durable)
	if err != nil {
		return nil, err
	}
	return &natsPullConsumer{sub: sub}, nil
}

func (s *natsStream) SubscribeOrdered(subject string) (OrderedConsumer, error) {
	sub, err := s.js.SubscribeSync(subject, nats.OrderedConsumer())
	if err != nil {
		return nil, err
	}
	return &natsOrderedConsumer{sub: sub}, nil
}

func (s *natsStream) StreamNameBySubject(subject string) (string, error) {
	return s.js.StreamNameBySubject(subject)
}

func (s *natsStream) AddStream(cfg StreamConfig) error {
	_, err := s.js.AddStream(&nats.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgSize: cfg.MaxMsgSize,
	})
	return err
}

func (s *natsStream) DeleteConsumer(stream, consumer string) error {
	return s.js.DeleteConsumer(stream, consumer)
}

type natsPullConsumer struct {
	sub *nats.Subscription
}

func (c *natsPullConsumer) Fetch(batch int, maxWait time.Duration) ([]Delivery, error) {
	msgs, err := c.sub.Fetch(batch, nats.MaxWait(maxWait))
	if err != nil {
		return nil, err
	}
	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		deliveries = append(deliveries, &natsDelivery{msg: msg})
	}
	return deliveries, nil
}

func (c *natsPullConsumer) Unsubscribe() error {
	return c.sub.Unsubscribe()
}

type natsOrderedConsumer struct {
	sub *nats.Subscription
}

func (c *natsOrderedConsumer) Next(ctx context.Context) (Delivery, error) {
	msg, err := c.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &natsDelivery{msg: msg}, nil
}

func (c *natsOrderedConsumer) Info() (*ConsumerInfo, error) {
	info, err := c.sub.ConsumerInfo()
	if err != nil {
		return nil, err
	}
	return &ConsumerInfo{
		Name:                 info.Name,
		NumPending:           info.NumPending,
		DeliveredConsumerSeq: info.Delivered.Consumer,
	}, nil
}

func (c *natsOrderedConsumer) Unsubscribe() error {
	return c.sub.Unsubscribe()
}

type natsDelivery struct {
	msg *nats.Msg
}

func (d *natsDelivery) Subject() string {
	return d.msg.Subject
}

func (d *natsDelivery) Data() []byte {
	return d.msg.Data
}

func (d *natsDelivery) Ack() error {
	return d.msg.Ack()
}

func (d *natsDelivery) Nak() error {
	return d.msg.Nak()
}

func (d *natsDelivery) Term() error {
	return d.msg.Term()
}

func (d *natsDelivery) InProgress() error {
	return d.msg.InProgress()
}

func (d *natsDelivery) Metadata() (*DeliveryMetadata, error) {
	md, err := d.msg.Metadata()
	if err != nil {
		return nil, err
	}
	return &DeliveryMetadata{
		Stream:       md.Stream,
		Consumer:     md.Consumer,
		StreamSeq:    md.Sequence.Stream,
		ConsumerSeq:  md.Sequence.Consumer,
		NumDelivered: md.NumDelivered,
	}, nil
}
