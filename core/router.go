package core

import (
	"context"
	"fmt"
	"sync"
)

// Router dispatches messages from broker subscriptions to handlers,
// wrapping each handler in the registered middleware.
type Router struct {
	broker      Broker
	binder      Binder
	middlewares []MiddlewareFunc
	routes      map[Subscription]HandlerFunc
	mu          sync.RWMutex
	started     bool
}

// New creates a Router bound to the given Broker.
// It uses JSONBinder for deserialization.
func New(b Broker) *Router {
	return &Router{
		broker: b,
		binder: JSONBinder{},
		routes: make(map[Subscription]HandlerFunc),
	}
}

// SetBinder replaces the message binder used by Context.Bind().
func (r *Router) SetBinder(b Binder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binder = b
}

// Use registers global middleware. Given middleware [A, B], the call
// order is A -> B -> handler.
func (r *Router) Use(m MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, m)
}

// Handle registers a handler for a topic/subscription pair. Registering
// the same pair twice replaces the earlier handler.
func (r *Router) Handle(topic, subscription string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[Subscription{Topic: topic, Name: subscription}] = h
}

// Routes returns the registered subscriptions.
func (r *Router) Routes() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]Subscription, 0, len(r.routes))
	for s := range r.routes {
		subs = append(subs, s)
	}
	return subs
}

// Publish sends a message to the given topic through the broker.
func (r *Router) Publish(ctx context.Context, topic string, msg Message) error {
	if r.broker == nil {
		return ErrNoBroker
	}
	return r.broker.Publish(ctx, topic, msg)
}

// Start subscribes to all registered subscriptions and begins consuming
// messages. It blocks until the context is cancelled or a subscription
// fails, then stops the remaining subscriptions and closes the broker.
func (r *Router) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.broker == nil {
		r.mu.Unlock()
		return ErrNoBroker
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true

	// Snapshot routes, middleware, and config under lock
	routes := make(map[Subscription]HandlerFunc, len(r.routes))
	for k, v := range r.routes {
		routes[k] = v
	}
	mws := make([]MiddlewareFunc, len(r.middlewares))
	copy(mws, r.middlewares)
	binder := r.binder
	broker := r.broker
	r.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(routes))

	for sub, handler := range routes {
		sub := sub
		wrapped := applyMiddleware(handler, mws)

		// Bridge from the broker's low-level Handler to the Context-based HandlerFunc
		bridge := func(c context.Context, msg Message) error {
			return wrapped(NewContext(c, msg, sub, broker, binder))
		}

		wg.Add(1)
		go func(s Subscription, h Handler) {
			defer wg.Done()
			if err := broker.Subscribe(ctx, s, h); err != nil {
				errCh <- fmt.Errorf("topicmux: subscribe %s: %w", s, err)
			}
		}(sub, bridge)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return broker.Close()
	case err := <-errCh:
		if err != nil {
			_ = broker.Close()
			return err
		}
		// All subscriptions returned without error; wait for shutdown
		<-ctx.Done()
		return broker.Close()
	}
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
