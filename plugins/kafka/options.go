package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka broker.
type Option func(*options)

type options struct {
	// Writer
	balancer  kafka.Balancer
	batchSize int
	async     bool

	// Reader
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64

	// General
	dialer *kafka.Dialer
}

func defaults() options {
	return options{
		balancer:    &kafka.Hash{}, // same key, same partition
		batchSize:   1,             // publishers send one message at a time
		minBytes:    1,
		maxBytes:    10e6, // 10 MB
		maxWait:     250 * time.Millisecond,
		startOffset: kafka.FirstOffset,
	}
}

// WithBalancer sets the partition balancer for the writer.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithAsync enables asynchronous writes.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMinBytes sets the minimum bytes the broker accumulates before answering a fetch.
func WithMinBytes(n int) Option {
	return func(o *options) { o.minBytes = n }
}

// WithMaxWait sets the maximum wait time for a single broker fetch.
// It is independent of the Receive window.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets the consumer start offset (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}
