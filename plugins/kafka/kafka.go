package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Broker, error) {
		return New(cfg.Endpoints(), optsFromConfig(cfg)...)
	})
}

// fetcher is the part of *kafka.Reader that receive and settlement use.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Broker implements core.Broker for Apache Kafka using segmentio/kafka-go.
// A subscription maps to a consumer group on the topic.
//
// Design decisions:
//   - One kafka.Writer shared across all Publish calls (thread-safe by library).
//   - One kafka.Reader per subscription, shared by Receive and Subscribe
//     and kept open until Close so Ack can commit offsets.
//   - Manual offset commit via Ack(); not committing (Nack) causes redelivery.
type Broker struct {
	brokers []string
	opts    options

	writer  *kafka.Writer
	readers map[core.Subscription]*kafka.Reader
	mu      sync.Mutex
	closed  bool
}

// New creates a Kafka Broker.
func New(brokers []string, fns ...Option) (*Broker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("topicmux/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		Async:        opts.async,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  opts.dialer.TLS,
			SASL: opts.dialer.SASLMechanism,
		}
	}

	return &Broker{
		brokers: brokers,
		opts:    opts,
		writer:  w,
		readers: make(map[core.Subscription]*kafka.Reader),
	}, nil
}

// Publish sends a message to the specified topic.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBrokerClosed
	}
	b.mu.Unlock()

	km := kafka.Message{
		Topic:   topic,
		Key:     msg.Key(),
		Value:   msg.Value(),
		Headers: toHeaders(msg.Headers()),
	}
	if err := b.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("topicmux/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

// Receive fetches up to opts.MaxMessages messages from the subscription's
// consumer group, returning early when opts.MaxWait elapses.
func (b *Broker) Receive(ctx context.Context, sub core.Subscription, opts core.ReceiveOptions) ([]core.Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r, err := b.reader(sub)
	if err != nil {
		return nil, err
	}
	return receiveBatch(ctx, sub, r, opts)
}

// receiveBatch fetches until the batch is full or the window closes.
// Uncommitted messages of a cancelled receive are redelivered to the group.
func receiveBatch(ctx context.Context, sub core.Subscription, r fetcher, opts core.ReceiveOptions) ([]core.Message, error) {
	wctx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()

	var msgs []core.Message
	for len(msgs) < opts.MaxMessages {
		raw, err := r.FetchMessage(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break // window elapsed
			}
			return nil, fmt.Errorf("topicmux/kafka: fetch from %s: %w", sub, err)
		}
		msgs = append(msgs, &message{raw: raw, reader: r, ctx: ctx})
	}
	return msgs, nil
}

// Subscribe fetches from the subscription's consumer group and blocks,
// delivering messages to the handler until the context is cancelled.
func (b *Broker) Subscribe(ctx context.Context, sub core.Subscription, handler core.Handler) error {
	r, err := b.reader(sub)
	if err != nil {
		return err
	}
	for {
		raw, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return fmt.Errorf("topicmux/kafka: fetch from %s: %w", sub, err)
		}

		msg := &message{raw: raw, reader: r, ctx: ctx}
		if err := handler(ctx, msg); err != nil {
			// Offset is NOT committed; the message is redelivered
			// after rebalance or restart.
			continue
		}
	}
}

// Close flushes the writer and closes all readers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("topicmux/kafka: close writer: %w", err))
	}
	for sub, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("topicmux/kafka: close reader %s: %w", sub, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broker) reader(sub core.Subscription) (*kafka.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrBrokerClosed
	}
	if r, ok := b.readers[sub]; ok {
		return r, nil
	}
	r := kafka.NewReader(b.readerConfig(sub))
	b.readers[sub] = r
	return r, nil
}

func (b *Broker) readerConfig(sub core.Subscription) kafka.ReaderConfig {
	cfg := kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    sub.Topic,
		GroupID:  sub.Name,
		MinBytes: b.opts.minBytes,
		MaxBytes: b.opts.maxBytes,
		MaxWait:  b.opts.maxWait,
	}
	if b.opts.dialer != nil {
		cfg.Dialer = b.opts.dialer
	}
	if sub.Name == "" {
		cfg.StartOffset = b.opts.startOffset
	}
	return cfg
}

// toHeaders converts a string map to Kafka headers.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	headers := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["async"].(bool); ok && v {
		opts = append(opts, WithAsync(true))
	}
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	if v, ok := cfg.Extra["start_offset"].(string); ok {
		switch v {
		case "first":
			opts = append(opts, WithStartOffset(kafka.FirstOffset))
		case "last":
			opts = append(opts, WithStartOffset(kafka.LastOffset))
		}
	}
	return opts
}
