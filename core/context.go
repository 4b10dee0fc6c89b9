package core

import (
	"context"
	"fmt"
	"sync"
)

// Context is the per-message handler context handed to a HandlerFunc.
// It wraps the incoming message, provides deserialization via Bind,
// and exposes settlement (Ack, Nack) and Republish.
type Context interface {
	// Context returns the underlying context.Context.
	Context() context.Context

	// SetContext replaces the underlying context.Context.
	SetContext(ctx context.Context)

	Message() Message

	// Topic returns the topic this message was received from.
	Topic() string

	// Subscription returns the subscription the message was delivered through.
	Subscription() Subscription

	Key() []byte
	Value() []byte
	Header(key string) string
	Headers() map[string]string

	// Bind deserializes the message body into v using the router's Binder.
	Bind(v any) error

	// Ack completes the message so it is not delivered again.
	Ack() error

	// Nack abandons the message so the broker redelivers it.
	Nack() error

	// Republish sends the current message to a different topic.
	Republish(topic string) error

	// Set stores a key-value pair for downstream middleware and handlers.
	Set(key string, val any)
	Get(key string) (any, bool)
}

// HandlerFunc is the function signature for Router handlers.
//
//	r.Handle("tutorial-topic", "tutorial-subscription", func(c core.Context) error {
//	    fmt.Println(string(c.Value()))
//	    return c.Ack()
//	})
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type eventContext struct {
	ctx    context.Context
	msg    Message
	sub    Subscription
	broker Broker
	binder Binder
	store  map[string]any
	mu     sync.RWMutex
}

// NewContext creates a Context for the given message.
// The Router calls this for each incoming message.
func NewContext(ctx context.Context, msg Message, sub Subscription, b Broker, binder Binder) Context {
	return &eventContext{
		ctx:    ctx,
		msg:    msg,
		sub:    sub,
		broker: b,
		binder: binder,
		store:  make(map[string]any),
	}
}

func (c *eventContext) Context() context.Context { return c.ctx }

func (c *eventContext) SetContext(ctx context.Context) { c.ctx = ctx }

func (c *eventContext) Message() Message { return c.msg }

func (c *eventContext) Topic() string { return c.sub.Topic }

func (c *eventContext) Subscription() Subscription { return c.sub }

func (c *eventContext) Key() []byte { return c.msg.Key() }

func (c *eventContext) Value() []byte { return c.msg.Value() }

func (c *eventContext) Header(key string) string {
	return c.msg.Headers()[key]
}

func (c *eventContext) Headers() map[string]string {
	return c.msg.Headers()
}

func (c *eventContext) Bind(v any) error {
	if c.binder == nil {
		return fmt.Errorf("topicmux: no binder configured")
	}
	if err := c.binder.Bind(c.msg.Value(), v); err != nil {
		return fmt.Errorf("topicmux: bind: %w", err)
	}
	return nil
}

func (c *eventContext) Ack() error {
	if err := c.msg.Ack(); err != nil {
		return fmt.Errorf("topicmux: ack: %w", err)
	}
	return nil
}

func (c *eventContext) Nack() error {
	if err := c.msg.Nack(); err != nil {
		return fmt.Errorf("topicmux: nack: %w", err)
	}
	return nil
}

func (c *eventContext) Republish(topic string) error {
	if c.broker == nil {
		return ErrNoBroker
	}
	out := &Envelope{K: c.msg.Key(), V: c.msg.Value(), H: c.msg.Headers()}
	if err := c.broker.Publish(c.ctx, topic, out); err != nil {
		return fmt.Errorf("topicmux: republish to %q: %w", topic, err)
	}
	return nil
}

func (c *eventContext) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *eventContext) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}
