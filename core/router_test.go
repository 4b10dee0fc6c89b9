package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/internal/mock"
)

var tutorialSub = core.Subscription{Topic: "tutorial-topic", Name: "tutorial-subscription"}

func startRouter(t *testing.T, r *core.Router) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Start(ctx)
	}()
	return cancel, errCh
}

func TestRouter_HandleAndStart(t *testing.T) {
	mb := mock.NewBroker()
	r := core.New(mb)

	var called atomic.Bool
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error {
		called.Store(true)
		assert.Equal(t, tutorialSub.Topic, c.Topic())
		assert.Equal(t, tutorialSub, c.Subscription())
		return c.Ack()
	})

	cancel, errCh := startRouter(t, r)

	_, ok := mb.WaitSubscribed(time.Second)
	require.True(t, ok, "router never subscribed")

	msg := &mock.Message{K: []byte("key1"), V: []byte("value1")}
	require.NoError(t, mb.Deliver(context.Background(), tutorialSub, msg))

	assert.True(t, called.Load(), "handler was not called")
	assert.Equal(t, 1, msg.Acks())

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, mb.IsClosed(), "broker should be closed after Start returns")
}

func TestRouter_Middleware(t *testing.T) {
	mb := mock.NewBroker()
	r := core.New(mb)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	mw := func(name string) core.MiddlewareFunc {
		return func(next core.HandlerFunc) core.HandlerFunc {
			return func(c core.Context) error {
				record(name + ":before")
				err := next(c)
				record(name + ":after")
				return err
			}
		}
	}

	r.Use(mw("A"))
	r.Use(mw("B"))
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error {
		record("handler")
		return nil
	})

	cancel, errCh := startRouter(t, r)
	_, ok := mb.WaitSubscribed(time.Second)
	require.True(t, ok)

	msg := &mock.Message{K: []byte("k"), V: []byte("v")}
	require.NoError(t, mb.Deliver(context.Background(), tutorialSub, msg))

	cancel()
	require.NoError(t, <-errCh)

	expected := []string{"A:before", "B:before", "handler", "B:after", "A:after"}
	assert.Equal(t, expected, order)
}

func TestRouter_HandlerErrorPropagates(t *testing.T) {
	mb := mock.NewBroker()
	r := core.New(mb)

	boom := errors.New("boom")
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error {
		return boom
	})

	cancel, errCh := startRouter(t, r)
	defer func() {
		cancel()
		<-errCh
	}()
	_, ok := mb.WaitSubscribed(time.Second)
	require.True(t, ok)

	err := mb.Deliver(context.Background(), tutorialSub, &mock.Message{})
	assert.ErrorIs(t, err, boom)
}

func TestRouter_SubscribeError(t *testing.T) {
	mb := mock.NewBroker()
	mb.SubscribeErr = errors.New("no such subscription")
	r := core.New(mb)
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error { return nil })

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tutorial-topic/tutorial-subscription")
	assert.True(t, mb.IsClosed())
}

// partialBroker fails Subscribe for one subscription and reports when the
// others return.
type partialBroker struct {
	*mock.Broker
	fail   core.Subscription
	exited chan core.Subscription
}

func (b *partialBroker) Subscribe(ctx context.Context, sub core.Subscription, h core.Handler) error {
	if sub == b.fail {
		return errors.New("subscription not found")
	}
	err := b.Broker.Subscribe(ctx, sub, h)
	b.exited <- sub
	return err
}

func TestRouter_SubscribeErrorStopsOtherSubscriptions(t *testing.T) {
	missing := core.Subscription{Topic: "orders", Name: "missing"}
	b := &partialBroker{
		Broker: mock.NewBroker(),
		fail:   missing,
		exited: make(chan core.Subscription, 1),
	}
	r := core.New(b)
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error { return nil })
	r.Handle(missing.Topic, missing.Name, func(c core.Context) error { return nil })

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders/missing")

	select {
	case sub := <-b.exited:
		assert.Equal(t, tutorialSub, sub)
	case <-time.After(time.Second):
		t.Fatal("healthy subscription still running after Start returned")
	}
}

func TestRouter_Publish(t *testing.T) {
	mb := mock.NewBroker()
	r := core.New(mb)

	msg := core.NewTextEnvelope("hello")
	require.NoError(t, r.Publish(context.Background(), "out.topic", msg))

	pubs := mb.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "out.topic", pubs[0].Topic)
	assert.Equal(t, []byte("hello"), pubs[0].Message.Value())
}

func TestRouter_Routes(t *testing.T) {
	r := core.New(mock.NewBroker())
	r.Handle("a", "one", func(c core.Context) error { return nil })
	r.Handle("a", "two", func(c core.Context) error { return nil })
	r.Handle("a", "one", func(c core.Context) error { return nil })

	assert.ElementsMatch(t, []core.Subscription{
		{Topic: "a", Name: "one"},
		{Topic: "a", Name: "two"},
	}, r.Routes())
}

func TestRouter_NilBroker(t *testing.T) {
	r := core.New(nil)
	assert.ErrorIs(t, r.Start(context.Background()), core.ErrNoBroker)
	assert.ErrorIs(t, r.Publish(context.Background(), "t", &mock.Message{}), core.ErrNoBroker)
}

func TestRouter_DoubleStart(t *testing.T) {
	mb := mock.NewBroker()
	r := core.New(mb)
	r.Handle(tutorialSub.Topic, tutorialSub.Name, func(c core.Context) error { return nil })

	cancel, errCh := startRouter(t, r)
	defer func() {
		cancel()
		<-errCh
	}()
	_, ok := mb.WaitSubscribed(time.Second)
	require.True(t, ok)

	assert.ErrorIs(t, r.Start(context.Background()), core.ErrAlreadyStarted)
}
