package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = broker.Create("kafka", broker.Config{})
	require.Error(t, err)
}

func TestReaderConfig_SubscriptionIsConsumerGroup(t *testing.T) {
	b, err := New([]string{"localhost:9092"}, WithMaxBytes(1024))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	cfg := b.readerConfig(core.Subscription{Topic: "tutorial-topic", Name: "tutorial-subscription"})
	assert.Equal(t, "tutorial-topic", cfg.Topic)
	assert.Equal(t, "tutorial-subscription", cfg.GroupID)
	assert.Equal(t, 1024, cfg.MaxBytes)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
}

func TestClosedBroker(t *testing.T) {
	b, err := New([]string{"localhost:9092"})
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err = b.Publish(context.Background(), "tutorial-topic", core.NewTextEnvelope("x"))
	assert.ErrorIs(t, err, core.ErrBrokerClosed)

	_, err = b.Receive(context.Background(), core.Subscription{Topic: "t", Name: "s"}, core.DefaultReceiveOptions())
	assert.ErrorIs(t, err, core.ErrBrokerClosed)
}

func TestReceive_InvalidOptions(t *testing.T) {
	b, err := New([]string{"localhost:9092"})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, err = b.Receive(context.Background(), core.Subscription{Topic: "t", Name: "s"}, core.ReceiveOptions{MaxMessages: 1})
	assert.ErrorIs(t, err, core.ErrInvalidReceiveOptions)
}

func TestHeaders(t *testing.T) {
	assert.Nil(t, toHeaders(nil))

	in := map[string]string{"content-type": "text/plain", "tenant": "contoso"}
	assert.Equal(t, in, fromHeaders(toHeaders(in)))

	m := &message{raw: kafka.Message{Value: []byte("hi"), Headers: toHeaders(in)}}
	assert.Equal(t, "text/plain", m.Headers()["content-type"])
	assert.Equal(t, "hi", m.String())
	assert.NoError(t, m.Nack())
}

func TestMessage_SettleOnce(t *testing.T) {
	f := &fakeFetcher{}
	acked := &message{raw: kafka.Message{Offset: 4}, reader: f, ctx: context.Background()}
	require.NoError(t, acked.Ack())
	assert.ErrorIs(t, acked.Nack(), core.ErrAlreadySettled)
	assert.ErrorIs(t, acked.Ack(), core.ErrAlreadySettled)

	nacked := &message{raw: kafka.Message{Offset: 5}, reader: f, ctx: context.Background()}
	require.NoError(t, nacked.Nack())
	assert.ErrorIs(t, nacked.Ack(), core.ErrAlreadySettled)
	assert.ErrorIs(t, nacked.Nack(), core.ErrAlreadySettled)

	assert.Equal(t, []int64{4}, f.committed())
}

// fakeFetcher hands out queued messages, then blocks until ctx is done
// the way kafka.Reader does on an idle partition.
type fakeFetcher struct {
	mu      sync.Mutex
	queue   []kafka.Message
	err     error
	commits []int64
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return kafka.Message{}, f.err
	}
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.commits = append(f.commits, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.commits...)
}

func queued(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{Topic: "tutorial-topic", Offset: int64(i), Value: []byte{byte('a' + i)}}
	}
	return out
}

var tutorialSub = core.Subscription{Topic: "tutorial-topic", Name: "tutorial-subscription"}

func TestReceiveBatch_StopsAtMaxMessages(t *testing.T) {
	f := &fakeFetcher{queue: queued(5)}

	start := time.Now()
	msgs, err := receiveBatch(context.Background(), tutorialSub, f, core.ReceiveOptions{MaxMessages: 3, MaxWait: 5 * time.Second})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "a", string(msgs[0].Value()))

	require.NoError(t, msgs[2].Ack())
	assert.Equal(t, []int64{2}, f.committed())
}

func TestReceiveBatch_WindowElapsed(t *testing.T) {
	f := &fakeFetcher{queue: queued(2)}

	start := time.Now()
	msgs, err := receiveBatch(context.Background(), tutorialSub, f, core.ReceiveOptions{MaxMessages: 20, MaxWait: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	msgs, err = receiveBatch(context.Background(), tutorialSub, f, core.ReceiveOptions{MaxMessages: 20, MaxWait: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReceiveBatch_CallerCancelled(t *testing.T) {
	f := &fakeFetcher{queue: queued(1)}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	msgs, err := receiveBatch(ctx, tutorialSub, f, core.ReceiveOptions{MaxMessages: 5, MaxWait: 5 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, msgs)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, f.committed())
}

func TestReceiveBatch_FetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("group coordinator not available")}

	_, err := receiveBatch(context.Background(), tutorialSub, f, core.ReceiveOptions{MaxMessages: 5, MaxWait: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tutorial-topic/tutorial-subscription")
}

func TestOptsFromConfig(t *testing.T) {
	assert.Nil(t, optsFromConfig(broker.Config{}))

	opts := optsFromConfig(broker.Config{Extra: map[string]any{
		"async":        true,
		"batch_size":   50,
		"max_bytes":    2048,
		"start_offset": "last",
	}})
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	assert.True(t, o.async)
	assert.Equal(t, 50, o.batchSize)
	assert.Equal(t, 2048, o.maxBytes)
	assert.Equal(t, kafka.LastOffset, o.startOffset)
}
