package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Broker, error) {
		endpoints := cfg.Endpoints()
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("topicmux/nats: at least one broker URL is required")
		}
		return New(endpoints[0], optsFromConfig(cfg)...)
	})
}

// Broker implements core.Broker for NATS JetStream.
// A topic maps to a subject backed by a stream of the same (sanitized)
// name; a subscription maps to a durable consumer on that stream.
//
// Design decisions:
//   - One NATS connection per Broker instance.
//   - Streams are created on first publish or subscribe to a topic.
//   - Manual ack via Ack(); Nack() triggers server-side redelivery.
//   - Graceful shutdown: context cancellation stops consumers, Close()
//     closes the connection.
type Broker struct {
	conn *nats.Conn
	js   jetstream.JetStream
	opts options

	mu        sync.Mutex
	closed    bool
	streams   map[string]jetstream.Stream
	consumers map[core.Subscription]jetstream.Consumer
	subs      []jetstream.ConsumeContext
}

// New creates a NATS JetStream Broker. url is a standard NATS URL (nats://host:port).
func New(url string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	nc, err := nats.Connect(url, nats.Name(opts.clientName))
	if err != nil {
		return nil, fmt.Errorf("topicmux/nats: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("topicmux/nats: init jetstream: %w", err)
	}

	return &Broker{
		conn:      nc,
		js:        js,
		opts:      opts,
		streams:   make(map[string]jetstream.Stream),
		consumers: make(map[core.Subscription]jetstream.Consumer),
	}, nil
}

// Publish sends a message to the topic's subject via JetStream.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	if _, err := b.stream(ctx, topic); err != nil {
		return err
	}

	headers := nats.Header{}
	for k, v := range msg.Headers() {
		headers.Set(k, v)
	}

	nm := &nats.Msg{
		Subject: topic,
		Data:    msg.Value(),
		Header:  headers,
	}
	var pubOpts []jetstream.PublishOpt
	if k := msg.Key(); len(k) > 0 {
		pubOpts = append(pubOpts, jetstream.WithMsgID(string(k)))
	}
	if _, err := b.js.PublishMsg(ctx, nm, pubOpts...); err != nil {
		return fmt.Errorf("topicmux/nats: publish to %q: %w", topic, err)
	}
	return nil
}

// Receive fetches up to opts.MaxMessages from the subscription's durable
// consumer, waiting at most opts.MaxWait.
func (b *Broker) Receive(ctx context.Context, sub core.Subscription, opts core.ReceiveOptions) ([]core.Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cons, err := b.consumer(ctx, sub)
	if err != nil {
		return nil, err
	}
	return receiveBatch(ctx, sub, cons, opts)
}

// fetcher is the part of jetstream.Consumer that Receive uses.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// receiveBatch drains one pull request. Fetch itself is not cancellable,
// so ctx is watched while the batch fills; on cancellation or a failed
// pull the messages gathered so far are naked for prompt redelivery.
func receiveBatch(ctx context.Context, sub core.Subscription, f fetcher, opts core.ReceiveOptions) ([]core.Message, error) {
	batch, err := f.Fetch(opts.MaxMessages, jetstream.FetchMaxWait(opts.MaxWait))
	if err != nil {
		return nil, fmt.Errorf("topicmux/nats: fetch from %s: %w", sub, err)
	}

	var msgs []core.Message
	in := batch.Messages()
	for {
		select {
		case <-ctx.Done():
			release(msgs)
			return nil, ctx.Err()
		case jsMsg, ok := <-in:
			if !ok {
				if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
					release(msgs)
					return nil, fmt.Errorf("topicmux/nats: fetch from %s: %w", sub, err)
				}
				return msgs, nil
			}
			msgs = append(msgs, &message{msg: jsMsg})
		}
	}
}

func release(msgs []core.Message) {
	for _, m := range msgs {
		_ = m.Nack()
	}
}

// Subscribe consumes from the subscription's durable consumer until the
// context is cancelled.
func (b *Broker) Subscribe(ctx context.Context, sub core.Subscription, handler core.Handler) error {
	cons, err := b.consumer(ctx, sub)
	if err != nil {
		return err
	}

	cc, err := cons.Consume(func(jsMsg jetstream.Msg) {
		msg := &message{msg: jsMsg}
		if err := handler(ctx, msg); err != nil {
			_ = msg.Nack()
		}
	})
	if err != nil {
		return fmt.Errorf("topicmux/nats: start consume on %s: %w", sub, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	// Block until context is cancelled
	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close stops all consumers and closes the NATS connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, s := range b.subs {
		s.Stop()
	}
	b.conn.Close()
	return nil
}

func (b *Broker) stream(ctx context.Context, topic string) (jetstream.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrBrokerClosed
	}
	if s, ok := b.streams[topic]; ok {
		return s, nil
	}

	name := sanitizeStreamName(topic)
	s, err := b.js.CreateOrUpdateStream(ctx, b.streamConfig(topic))
	if err != nil {
		return nil, fmt.Errorf("topicmux/nats: create stream %q: %w", name, err)
	}
	b.streams[topic] = s
	return s, nil
}

func (b *Broker) consumer(ctx context.Context, sub core.Subscription) (jetstream.Consumer, error) {
	stream, err := b.stream(ctx, sub.Topic)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.consumers[sub]; ok {
		return c, nil
	}
	c, err := stream.CreateOrUpdateConsumer(ctx, b.consumerConfig(sub))
	if err != nil {
		return nil, fmt.Errorf("topicmux/nats: create consumer %s: %w", sub, err)
	}
	b.consumers[sub] = c
	return c, nil
}

func (b *Broker) streamConfig(topic string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      sanitizeStreamName(topic),
		Subjects:  []string{topic},
		MaxMsgs:   b.opts.maxMsgs,
		MaxBytes:  b.opts.maxBytes,
		MaxAge:    b.opts.maxAge,
		Replicas:  b.opts.replicas,
		Retention: b.opts.retention,
		Storage:   b.opts.storage,
	}
}

func (b *Broker) consumerConfig(sub core.Subscription) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:    sanitizeStreamName(sub.Name),
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    b.opts.ackWait,
		MaxDeliver: b.opts.maxDeliver,
	}
}

// sanitizeStreamName converts a subject or subscription name into a
// valid JetStream stream or consumer name.
func sanitizeStreamName(name string) string {
	buf := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '.', '*', '>', ' ', '/', '\\':
			buf[i] = '-'
		default:
			buf[i] = c
		}
	}
	return string(buf)
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["max_deliver"].(int); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Extra["replicas"].(int); ok {
		opts = append(opts, WithReplicas(v))
	}
	if v, ok := cfg.Extra["storage"].(string); ok && v == "memory" {
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	}
	if v, ok := cfg.Extra["client_name"].(string); ok {
		opts = append(opts, WithClientName(v))
	}
	return opts
}
