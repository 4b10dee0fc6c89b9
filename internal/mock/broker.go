package mock

import (
	"context"
	"sync"
	"time"

	"github.com/miladsoleymani/topicmux/core"
)

// Broker is a test double for core.Broker.
type Broker struct {
	mu           sync.Mutex
	published    []PublishedMessage
	handlers     map[core.Subscription]core.Handler
	queues       map[core.Subscription][]core.Message
	subscribed   chan core.Subscription
	SubscribeErr error
	PublishErr   error
	ReceiveErr   error
	CloseErr     error
	closed       bool
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Topic   string
	Message core.Message
}

func NewBroker() *Broker {
	return &Broker{
		handlers:   make(map[core.Subscription]core.Handler),
		queues:     make(map[core.Subscription][]core.Message),
		subscribed: make(chan core.Subscription, 16),
	}
}

func (b *Broker) Publish(_ context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrBrokerClosed
	}
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, PublishedMessage{Topic: topic, Message: msg})
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, sub core.Subscription, handler core.Handler) error {
	b.mu.Lock()
	if b.SubscribeErr != nil {
		err := b.SubscribeErr
		b.mu.Unlock()
		return err
	}
	b.handlers[sub] = handler
	b.mu.Unlock()

	select {
	case b.subscribed <- sub:
	default:
	}

	// Block until context is cancelled (simulates a real subscription loop)
	<-ctx.Done()
	return nil
}

// Receive pops up to opts.MaxMessages queued messages. With an empty queue
// it waits out the window like a real broker would.
func (b *Broker) Receive(ctx context.Context, sub core.Subscription, opts core.ReceiveOptions) ([]core.Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, core.ErrBrokerClosed
	}
	if b.ReceiveErr != nil {
		err := b.ReceiveErr
		b.mu.Unlock()
		return nil, err
	}
	q := b.queues[sub]
	n := min(len(q), opts.MaxMessages)
	out := append([]core.Message(nil), q[:n]...)
	b.queues[sub] = q[n:]
	b.mu.Unlock()

	if len(out) == 0 {
		t := time.NewTimer(opts.MaxWait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return out, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.CloseErr
}

// Enqueue makes msgs available to Receive on sub.
func (b *Broker) Enqueue(sub core.Subscription, msgs ...core.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[sub] = append(b.queues[sub], msgs...)
}

// WaitSubscribed blocks until a Subscribe call has registered its handler
// or the timeout elapses.
func (b *Broker) WaitSubscribed(timeout time.Duration) (core.Subscription, bool) {
	select {
	case s := <-b.subscribed:
		return s, true
	case <-time.After(timeout):
		return core.Subscription{}, false
	}
}

// Deliver simulates an incoming message to a registered handler.
func (b *Broker) Deliver(ctx context.Context, sub core.Subscription, msg core.Message) error {
	b.mu.Lock()
	h, ok := b.handlers[sub]
	b.mu.Unlock()
	if !ok {
		return core.ErrNoHandler
	}
	return h(ctx, msg)
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// IsClosed reports whether Close was called.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
