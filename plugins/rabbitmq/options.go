package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Option configures the RabbitMQ broker.
type Option func(*options)

type options struct {
	// Exchange settings
	exchangeType string
	bindingKey   string

	// Queue settings
	durable    bool
	autoDelete bool
	exclusive  bool

	// Consumer settings
	prefetchCount int
	requeueOnNack bool
	pollInterval  time.Duration
}

func defaults() options {
	return options{
		exchangeType:  amqp.ExchangeFanout, // every bound queue gets every message
		durable:       true,
		prefetchCount: 20,
		requeueOnNack: true,
		pollInterval:  100 * time.Millisecond,
	}
}

func (o options) deliveryMode() uint8 {
	if o.durable {
		return amqp.Persistent
	}
	return amqp.Transient
}

// WithExchangeType sets the kind of exchange declared per topic.
func WithExchangeType(kind string) Option {
	return func(o *options) { o.exchangeType = kind }
}

// WithBindingKey sets the key used to bind subscription queues. Fanout
// exchanges ignore it.
func WithBindingKey(key string) Option {
	return func(o *options) { o.bindingKey = key }
}

// WithDurable controls whether exchanges, queues and messages survive a
// broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithPrefetchCount sets how many messages are delivered before requiring ack.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithRequeueOnNack controls whether nacked messages are requeued.
func WithRequeueOnNack(requeue bool) Option {
	return func(o *options) { o.requeueOnNack = requeue }
}

// WithAutoDelete causes queues to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPollInterval sets how often Receive polls an empty queue.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}
