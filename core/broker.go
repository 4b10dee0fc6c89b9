package core

import (
	"context"
	"fmt"
	"time"
)

// Broker defines the contract for message broker implementations.
// Each broker plugin must implement this interface.
type Broker interface {
	// Publish sends msg to the named topic.
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe delivers messages from the subscription to handler and
	// blocks until ctx is cancelled.
	Subscribe(ctx context.Context, sub Subscription, handler Handler) error

	// Receive performs a single bounded receive: it returns once
	// opts.MaxMessages messages are available or opts.MaxWait has elapsed,
	// whichever comes first. An elapsed window is not an error.
	Receive(ctx context.Context, sub Subscription, opts ReceiveOptions) ([]Message, error)

	Close() error
}

// Subscription names a durable view over a topic.
type Subscription struct {
	Topic string
	Name  string
}

func (s Subscription) String() string {
	return s.Topic + "/" + s.Name
}

// ReceiveOptions bounds a single Receive call.
type ReceiveOptions struct {
	MaxMessages int
	MaxWait     time.Duration
}

// DefaultReceiveOptions returns 20 messages within a 5 second window.
func DefaultReceiveOptions() ReceiveOptions {
	return ReceiveOptions{
		MaxMessages: 20,
		MaxWait:     5 * time.Second,
	}
}

// Validate reports whether both bounds are positive.
func (o ReceiveOptions) Validate() error {
	if o.MaxMessages <= 0 {
		return fmt.Errorf("%w: max messages must be positive, got %d", ErrInvalidReceiveOptions, o.MaxMessages)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("%w: max wait must be positive, got %s", ErrInvalidReceiveOptions, o.MaxWait)
	}
	return nil
}
