package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/projection"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

type fakeDelivery struct {
	subject string
	data    []byte
	md      broker.DeliveryMetadata
}

func (d *fakeDelivery) Subject() string   { return d.subject }
func (d *fakeDelivery) Data() []byte      { return d.data }
func (d *fakeDelivery) Ack() error        { return nil }
func (d *fakeDelivery) Nak() error        { return nil }
func (d *fakeDelivery) Term() error       { return nil }
func (d *fakeDelivery) InProgress() error { return nil }
func (d *fakeDelivery) Metadata() (*broker.DeliveryMetadata, error) {
	md := d.md
	return &md, nil
}

type fakeOrderedConsumer struct {
	deliveries   []broker.Delivery
	position     int
	info         *broker.ConsumerInfo
	infoErr      error
	nextErr      error
	unsubscribes int
}

func (c *fakeOrderedConsumer) Next(ctx context.Context) (broker.Delivery, error) {
	if c.position < len(c.deliveries) {
		delivery := c.deliveries[c.position]
		c.position++
		return delivery, nil
	}
	if c.nextErr != nil {
		return nil, c.nextErr
	}
	return nil, context.DeadlineExceeded
}

func (c *fakeOrderedConsumer) Info() (*broker.ConsumerInfo, error) {
	if c.infoErr != nil {
		return nil, c.infoErr
	}
	return c.info, nil
}

func (c *fakeOrderedConsumer) Unsubscribe() error {
	c.unsubscribes++
	return nil
}

type fakeStream struct {
	ordered           *fakeOrderedConsumer
	subscribeErr      error
	subscribedSubject string
	streamName        string
	lookupErr         error
	deleteCalls       [][2]string
	deleteErr         error
}

func (s *fakeStream) Publish(ctx context.Context, subject string, data []byte, msgID string) (*broker.PubAck, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStream) PullSubscribe(subject, durable string) (broker.PullConsumer, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStream) SubscribeOrdered(subject string) (broker.OrderedConsumer, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.subscribedSubject = subject
	return s.ordered, nil
}

func (s *fakeStream) StreamNameBySubject(subject string) (string, error) {
	if s.lookupErr != nil {
		return "", s.lookupErr
	}
	return s.streamName, nil
}

func (s *fakeStream) AddStream(cfg broker.StreamConfig) error {
	return errors.New("not implemented")
}

func (s *fakeStream) DeleteConsumer(stream, consumer string) error {
	s.deleteCalls = append(s.deleteCalls, [2]string{stream, consumer})
	return s.deleteErr
}

func deliveriesOf(subject string, types ...string) []broker.Delivery {
	deliveries := make([]broker.Delivery, 0, len(types))
	for i, msgType := range types {
		payload, _ := json.Marshal(map[string]any{"type": msgType, "data": map[string]any{}})
		deliveries = append(deliveries, &fakeDelivery{
			subject: subject,
			data:    payload,
			md:      broker.DeliveryMetadata{StreamSeq: uint64(i + 1)},
		})
	}
	return deliveries
}

func countingProjection() *projection.Projection[map[string]int] {
	return projection.New(
		func() map[string]int { return map[string]int{"count": 0} },
		map[string]projection.Handler[map[string]int]{
			"TheEvent": func(state map[string]int, _ *message.Incoming) map[string]int {
				return map[string]int{"count": state["count"] + 1}
			},
		},
	)
}

func TestDrainNoMessagesReturnsInit(t *testing.T) {
	stream := &fakeStream{
		ordered:    &fakeOrderedConsumer{info: &broker.ConsumerInfo{Name: "eph-1"}},
		streamName: "the-stream",
	}
	proj := projection.New(
		func() map[string]string { return map[string]string{"result": "init"} },
		map[string]projection.Handler[map[string]string]{},
	)

	err := Drain(context.Background(), stream, "the_env_prefix.", "some_subject.123", proj, Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"result": "init"}, proj.Result())
	assert.Equal(t, "the_env_prefix.some_subject.123", stream.subscribedSubject)
	assert.Equal(t, 1, stream.ordered.unsubscribes)
	require.Len(t, stream.deleteCalls, 1)
	assert.Equal(t, [2]string{"the-stream", "eph-1"}, stream.deleteCalls[0])
}

func TestDrainFoldsMatchingMessages(t *testing.T) {
	deliveries := deliveriesOf("the_env_prefix.subject", "TheEvent", "TheEvent", "TheEvent", "UnrelatedEvent")
	stream := &fakeStream{
		ordered: &fakeOrderedConsumer{
			deliveries: deliveries,
			info:       &broker.ConsumerInfo{Name: "eph-2", NumPending: uint64(len(deliveries))},
		},
		streamName: "the-stream",
	}
	proj := countingProjection()

	err := Drain(context.Background(), stream, "the_env_prefix.", "subject", proj, Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"count": 3}, proj.Result())
	assert.Equal(t, 1, stream.ordered.unsubscribes)
	assert.Len(t, stream.deleteCalls, 1)
}

func TestDrainStopsAtUntilSeq(t *testing.T) {
	tests := []struct {
		name     string
		types    []string
		untilSeq uint64
		want     int
	}{
		{
			name:     "until seq 2 over three matching",
			types:    []string{"TheEvent", "TheEvent", "TheEvent", "UnrelatedEvent"},
			untilSeq: 2,
			want:     2,
		},
		{
			name:     "until seq 3 with unrelated in the middle",
			types:    []string{"TheEvent", "UnrelatedEvent", "TheEvent", "TheEvent"},
			untilSeq: 3,
			want:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deliveries := deliveriesOf("the_env_prefix.subject", tt.types...)
			stream := &fakeStream{
				ordered: &fakeOrderedConsumer{
					deliveries: deliveries,
					info:       &broker.ConsumerInfo{Name: "eph-3", NumPending: uint64(len(deliveries))},
				},
				streamName: "the-stream",
			}
			proj := countingProjection()

			err := Drain(context.Background(), stream, "the_env_prefix.", "subject", proj, Options{UntilSeq: tt.untilSeq})
			require.NoError(t, err)

			assert.Equal(t, map[string]int{"count": tt.want}, proj.Result())
			assert.Len(t, stream.deleteCalls, 1)
		})
	}
}

func TestDrainCountsDeliveredConsumerSeq(t *testing.T) {
	deliveries := deliveriesOf("p.subject", "TheEvent", "TheEvent", "TheEvent", "TheEvent")
	stream := &fakeStream{
		ordered: &fakeOrderedConsumer{
			deliveries: deliveries,
			// Half already delivered, half pending; the additive form
			// still bounds the drain at four
			info: &broker.ConsumerInfo{Name: "eph-4", NumPending: 2, DeliveredConsumerSeq: 2},
		},
		streamName: "the-stream",
	}
	proj := countingProjection()

	err := Drain(context.Background(), stream, "p.", "subject", proj, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"count": 4}, proj.Result())
}

func TestDrainCleansUpOnNextError(t *testing.T) {
	deliveries := deliveriesOf("p.subject", "TheEvent")
	stream := &fakeStream{
		ordered: &fakeOrderedConsumer{
			deliveries: deliveries,
			info:       &broker.ConsumerInfo{Name: "eph-5", NumPending: 3},
			nextErr:    nats.ErrTimeout,
		},
		streamName: "the-stream",
	}
	proj := countingProjection()

	err := Drain(context.Background(), stream, "p.", "subject", proj, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrTimeout)

	// One message was folded before the failure; cleanup still ran
	assert.Equal(t, map[string]int{"count": 1}, proj.Result())
	assert.Equal(t, 1, stream.ordered.unsubscribes)
	assert.Len(t, stream.deleteCalls, 1)
}

func TestDrainCleansUpOnInfoError(t *testing.T) {
	stream := &fakeStream{
		ordered:    &fakeOrderedConsumer{infoErr: fmt.Errorf("info failed")},
		streamName: "the-stream",
	}
	proj := countingProjection()

	err := Drain(context.Background(), stream, "p.", "subject", proj, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, stream.ordered.unsubscribes)
	// No consumer name was learned, so there is nothing to delete
	assert.Empty(t, stream.deleteCalls)
}

func TestDrainSwallowsDeleteErrors(t *testing.T) {
	stream := &fakeStream{
		ordered:    &fakeOrderedConsumer{info: &broker.ConsumerInfo{Name: "eph-6"}},
		streamName: "the-stream",
		deleteErr:  errors.New("consumer already gone"),
	}
	proj := countingProjection()

	err := Drain(context.Background(), stream, "p.", "subject", proj, Options{})
	assert.NoError(t, err)
	assert.Len(t, stream.deleteCalls, 1)
}

func TestDrainHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &fakeStream{
		ordered: &fakeOrderedConsumer{
			info:    &broker.ConsumerInfo{Name: "eph-7", NumPending: 1},
			nextErr: context.Canceled,
		},
		streamName: "the-stream",
	}
	proj := countingProjection()

	err := Drain(ctx, stream, "p.", "subject", proj, Options{NextWait: 10 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 1, stream.ordered.unsubscribes)
	assert.Len(t, stream.deleteCalls, 1)
}
