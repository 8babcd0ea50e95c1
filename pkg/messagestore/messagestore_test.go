package messagestore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zencastr/message-store/pkg/broker"
	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/message"
	"github.com/zencastr/message-store/pkg/projection"
	"github.com/zencastr/message-store/pkg/subscription"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

type publishCall struct {
	subject string
	data    []byte
	msgID   string
}

type fakeStream struct {
	mu sync.Mutex

	// publish
	publishCalls []publishCall
	publishErrs  []error // consumed one per call before succeeding

	// stream admin
	existingStream string
	lookupErr      error
	addedStreams   []broker.StreamConfig
	addErr         error

	// consumers
	ordered *fakeOrderedConsumer
	pull    *fakePullConsumer
}

func (s *fakeStream) Publish(ctx context.Context, subject string, data []byte, msgID string) (*broker.PubAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.publishErrs) > 0 {
		err := s.publishErrs[0]
		s.publishErrs = s.publishErrs[1:]
		return nil, err
	}
	s.publishCalls = append(s.publishCalls, publishCall{subject: subject, data: data, msgID: msgID})
	return &broker.PubAck{Stream: "the-stream", Seq: uint64(len(s.publishCalls)), Duplicate: false}, nil
}

func (s *fakeStream) PullSubscribe(subject, durable string) (broker.PullConsumer, error) {
	if s.pull == nil {
		return nil, errors.New("no pull consumer configured")
	}
	return s.pull, nil
}

func (s *fakeStream) SubscribeOrdered(subject string) (broker.OrderedConsumer, error) {
	if s.ordered == nil {
		return nil, errors.New("no ordered consumer configured")
	}
	return s.ordered, nil
}

func (s *fakeStream) StreamNameBySubject(subject string) (string, error) {
	if s.lookupErr != nil {
		return "", s.lookupErr
	}
	return s.existingStream, nil
}

func (s *fakeStream) AddStream(cfg broker.StreamConfig) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.addedStreams = append(s.addedStreams, cfg)
	return nil
}

func (s *fakeStream) DeleteConsumer(stream, consumer string) error { return nil }

type fakeOrderedConsumer struct {
	deliveries []broker.Delivery
	position   int
	info       *broker.ConsumerInfo
}

func (c *fakeOrderedConsumer) Next(ctx context.Context) (broker.Delivery, error) {
	if c.position < len(c.deliveries) {
		delivery := c.deliveries[c.position]
		c.position++
		return delivery, nil
	}
	return nil, context.DeadlineExceeded
}

func (c *fakeOrderedConsumer) Info() (*broker.ConsumerInfo, error) { return c.info, nil }
func (c *fakeOrderedConsumer) Unsubscribe() error                  { return nil }

type fakePullConsumer struct {
	mu         sync.Mutex
	deliveries []broker.Delivery
}

func (c *fakePullConsumer) Fetch(batch int, maxWait time.Duration) ([]broker.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deliveries) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nats.ErrTimeout
	}
	delivery := c.deliveries[0]
	c.deliveries = c.deliveries[1:]
	return []broker.Delivery{delivery}, nil
}

func (c *fakePullConsumer) Unsubscribe() error { return nil }

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

type fakePlainSub struct {
	mu           sync.Mutex
	msgs         [][]byte
	err          error
	unsubscribes int
}

func (s *fakePlainSub) NextMsg(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) > 0 {
		msg := s.msgs[0]
		s.msgs = s.msgs[1:]
		return msg, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, nats.ErrTimeout
}

func (s *fakePlainSub) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes++
	return nil
}

type fakeConn struct {
	sub    *fakePlainSub
	subErr error
}

func (c *fakeConn) IsClosed() bool { return false }
func (c *fakeConn) Subscribe(subject string) (broker.Subscription, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	return c.sub, nil
}

func newStore(conn broker.Conn, js broker.Stream) *MessageStore {
	return New(conn, js, Config{Prefix: "test"})
}

func TestNewStripsTrailingDot(t *testing.T) {
	stream := &fakeStream{existingStream: "test-cat"}
	store := New(&fakeConn{}, stream, Config{Prefix: "test."})

	assert.Equal(t, "test.", store.subjectPrefix)
	assert.Equal(t, "test-", store.streamPrefix)
}

func TestNewEmptyPrefixMeansNoPrefix(t *testing.T) {
	store := New(&fakeConn{}, &fakeStream{}, Config{})

	assert.Equal(t, "", store.subjectPrefix)
	assert.Equal(t, "", store.streamPrefix)
}

func TestEnsureStreamExistingIsNoOp(t *testing.T) {
	stream := &fakeStream{existingStream: "test-make-stream"}
	store := newStore(&fakeConn{}, stream)

	err := store.EnsureStream("make-stream")
	require.NoError(t, err)
	assert.Empty(t, stream.addedStreams)
}

func TestEnsureStreamMissingCreationDisabled(t *testing.T) {
	stream := &fakeStream{lookupErr: nats.ErrStreamNotFound}
	store := newStore(&fakeConn{}, stream)

	err := store.EnsureStream("dont-make-stream")
	require.Error(t, err)
	// The error suggests the stream name an operator should create
	assert.Contains(t, err.Error(), "test-dont-make-stream")
	assert.Contains(t, err.Error(), "test.dont-make-stream.>")
	assert.Empty(t, stream.addedStreams)
}

func TestEnsureStreamCreatesWhenAllowed(t *testing.T) {
	stream := &fakeStream{lookupErr: nats.ErrStreamNotFound}
	store := New(&fakeConn{}, stream, Config{Prefix: "test", CreateMissingStreams: true})

	err := store.EnsureStream("make-stream")
	require.NoError(t, err)

	require.Len(t, stream.addedStreams, 1)
	created := stream.addedStreams[0]
	assert.Equal(t, "test-make-stream", created.Name)
	assert.Equal(t, []string{"test.make-stream.>"}, created.Subjects)
	assert.Equal(t, int64(DefaultMaxBytesOnCreate), created.MaxBytes)
	assert.Equal(t, int32(DefaultMaxMsgSizeOnCreate), created.MaxMsgSize)
}

func TestEnsureStreamCustomCaps(t *testing.T) {
	stream := &fakeStream{lookupErr: nats.ErrStreamNotFound}
	store := New(&fakeConn{}, stream, Config{Prefix: "test", CreateMissingStreams: true})

	err := store.EnsureStream("make-stream",
		WithMaxBytesOnCreate(1<<20),
		WithMaxMsgSizeOnCreate(1<<10),
	)
	require.NoError(t, err)
	require.Len(t, stream.addedStreams, 1)
	assert.Equal(t, int64(1<<20), stream.addedStreams[0].MaxBytes)
	assert.Equal(t, int32(1<<10), stream.addedStreams[0].MaxMsgSize)
}

func TestPublishPrefixesAndSetsMsgID(t *testing.T) {
	stream := &fakeStream{}
	store := newStore(&fakeConn{}, stream)

	ack, err := store.Publish(context.Background(), "cat",
		message.New("GoodCommand", map[string]any{"key": "value"}),
		WithMsgID("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ack.Seq)

	require.Len(t, stream.publishCalls, 1)
	call := stream.publishCalls[0]
	assert.Equal(t, "test.cat", call.subject)
	assert.Equal(t, "msg-1", call.msgID)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(call.data, &wire))
	assert.Equal(t, "GoodCommand", wire["type"])
	assert.Equal(t, map[string]any{"key": "value"}, wire["data"])
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	stream := &fakeStream{publishErrs: []error{nats.ErrNoStreamResponse}}
	store := newStore(&fakeConn{}, stream)

	ack, err := store.Publish(context.Background(), "cat",
		message.New("GoodCommand", map[string]any{}))
	require.NoError(t, err)
	assert.NotNil(t, ack)
	assert.Len(t, stream.publishCalls, 1)
}

func TestPublishDoesNotRetryFatalErrors(t *testing.T) {
	fatal := errors.New("payload too big")
	stream := &fakeStream{publishErrs: []error{fatal}}
	store := newStore(&fakeConn{}, stream)

	_, err := store.Publish(context.Background(), "cat",
		message.New("GoodCommand", map[string]any{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Empty(t, stream.publishCalls)
}

func TestFetchFoldsThroughProjection(t *testing.T) {
	payload := func(msgType string) []byte {
		data, _ := json.Marshal(map[string]any{"type": msgType, "data": map[string]any{}})
		return data
	}
	stream := &fakeStream{
		existingStream: "test-cat",
		ordered: &fakeOrderedConsumer{
			deliveries: []broker.Delivery{
				&fakeDelivery{subject: "test.cat.1", data: payload("TheEvent"), md: broker.DeliveryMetadata{StreamSeq: 1}},
				&fakeDelivery{subject: "test.cat.1", data: payload("UnrelatedEvent"), md: broker.DeliveryMetadata{StreamSeq: 2}},
				&fakeDelivery{subject: "test.cat.1", data: payload("TheEvent"), md: broker.DeliveryMetadata{StreamSeq: 3}},
			},
			info: &broker.ConsumerInfo{Name: "eph-1", NumPending: 3},
		},
	}
	store := newStore(&fakeConn{}, stream)

	proj := projection.New(
		func() int { return 0 },
		map[string]projection.Handler[int]{
			"TheEvent": func(count int, _ *message.Incoming) int { return count + 1 },
		},
	)
	count, err := Fetch(context.Background(), store, "cat.1", proj)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFetchSurfacesFatalErrors(t *testing.T) {
	stream := &fakeStream{} // no ordered consumer configured
	store := newStore(&fakeConn{}, stream)

	proj := projection.New(func() int { return 0 }, map[string]projection.Handler[int]{})
	_, err := Fetch(context.Background(), store, "cat.1", proj)
	assert.Error(t, err)
}

func TestWaitForReturnsFirstMatch(t *testing.T) {
	encode := func(msgType string) []byte {
		data, _ := message.New(msgType, map[string]any{"key": "value"}).Encode()
		return data
	}
	sub := &fakePlainSub{msgs: [][]byte{encode("OtherEvent"), encode("WantedEvent")}}
	store := newStore(&fakeConn{sub: sub}, &fakeStream{})

	msg, err := store.WaitFor("cat.1", func(m message.Message) bool {
		return m.Type == "WantedEvent"
	}, WithWaitForTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "WantedEvent", msg.Type)
	assert.Equal(t, map[string]any{"key": "value"}, msg.Data)
	assert.GreaterOrEqual(t, sub.unsubscribes, 1)
}

func TestWaitForTimesOut(t *testing.T) {
	sub := &fakePlainSub{}
	store := newStore(&fakeConn{sub: sub}, &fakeStream{})

	_, err := store.WaitFor("cat.1", func(message.Message) bool { return true },
		WithWaitForTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.GreaterOrEqual(t, sub.unsubscribes, 1)
}

func TestPublishThenSubscribeRoundTrip(t *testing.T) {
	stream := &fakeStream{pull: &fakePullConsumer{}}
	conn := &fakeConn{}
	store := newStore(conn, stream)

	_, err := store.Publish(context.Background(), "cat.1",
		message.New("GoodCommand", map[string]any{"key": "value"}),
		WithMsgID("round-trip-1"))
	require.NoError(t, err)

	// Feed the published payload back as a delivery on the same subject
	require.Len(t, stream.publishCalls, 1)
	stream.pull.deliveries = []broker.Delivery{&fakeDelivery{
		subject: stream.publishCalls[0].subject,
		data:    stream.publishCalls[0].data,
		md:      broker.DeliveryMetadata{Stream: "test-cat", StreamSeq: 1, NumDelivered: 1},
	}}

	handled := make(chan *message.Incoming, 1)
	sub := store.NewSubscription("cat.1", "test-sub", map[string]subscription.Handler{
		"GoodCommand": func(ctx context.Context, msg *message.Incoming) error {
			handled <- msg
			return nil
		},
	})
	sub.Start()
	defer sub.Stop()

	select {
	case msg := <-handled:
		assert.Equal(t, "cat.1", msg.Subject)
		assert.Equal(t, map[string]any{"key": "value"}, msg.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never received the published message")
	}
}
