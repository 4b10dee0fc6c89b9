package servicebus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
)

func init() {
	broker.Register("servicebus", func(cfg broker.Config) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(cfg.ConnectionString, opts...)
	})
}

// Broker implements core.Broker for Azure Service Bus topics and
// subscriptions using azservicebus.
//
// Design decisions:
//   - One azservicebus.Client per Broker instance.
//   - One Sender per topic and one Receiver per subscription, opened on
//     first use and reused until Close.
//   - Peek-lock by default: Ack completes, Nack abandons.
//   - Topics and subscriptions must already exist; nothing is provisioned.
type Broker struct {
	client client
	opts   options

	mu        sync.Mutex
	closed    bool
	senders   map[string]sender
	receivers map[core.Subscription]receiver
}

// New creates a Service Bus Broker from a namespace connection string.
func New(connStr string, fns ...Option) (*Broker, error) {
	if connStr == "" {
		return nil, errors.New("topicmux/servicebus: connection string is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	c, err := azservicebus.NewClientFromConnectionString(connStr, &azservicebus.ClientOptions{
		ApplicationID: opts.applicationID,
		RetryOptions:  opts.retry,
	})
	if err != nil {
		return nil, fmt.Errorf("topicmux/servicebus: create client: %w", err)
	}
	return newBroker(&sdkClient{c: c}, opts), nil
}

func newBroker(c client, opts options) *Broker {
	return &Broker{
		client:    c,
		opts:      opts,
		senders:   make(map[string]sender),
		receivers: make(map[core.Subscription]receiver),
	}
}

// Publish sends msg to the named topic.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	s, err := b.sender(topic)
	if err != nil {
		return err
	}
	if err := s.SendMessage(ctx, toSDKMessage(msg), nil); err != nil {
		return fmt.Errorf("topicmux/servicebus: publish to %q: %w", topic, err)
	}
	return nil
}

// Receive waits up to opts.MaxWait for up to opts.MaxMessages messages.
func (b *Broker) Receive(ctx context.Context, sub core.Subscription, opts core.ReceiveOptions) ([]core.Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r, err := b.receiver(sub)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()

	raw, err := r.ReceiveMessages(rctx, opts.MaxMessages, nil)
	if err != nil && !windowElapsed(ctx, err) {
		return nil, fmt.Errorf("topicmux/servicebus: receive from %s: %w", sub, err)
	}

	msgs := make([]core.Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, newMessage(ctx, m, r, b.opts.receiveMode))
	}
	return msgs, nil
}

// windowElapsed reports whether err only signals the end of the receive
// window rather than a caller cancellation or a service failure.
func windowElapsed(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}

// Subscribe receives batches from the subscription and hands each message
// to handler until ctx is cancelled. A handler error abandons the message.
func (b *Broker) Subscribe(ctx context.Context, sub core.Subscription, handler core.Handler) error {
	batch := core.ReceiveOptions{MaxMessages: b.opts.subscribeBatch, MaxWait: b.opts.subscribeWait}
	for ctx.Err() == nil {
		msgs, err := b.Receive(ctx, sub, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return err
		}
		for _, msg := range msgs {
			if err := handler(ctx, msg); err != nil {
				if nerr := msg.Nack(); nerr != nil && !errors.Is(nerr, core.ErrAlreadySettled) {
					b.opts.logger.Warn("abandon failed",
						zap.Stringer("subscription", sub),
						zap.ByteString("message_id", msg.Key()),
						zap.Error(nerr))
				}
			}
		}
	}
	return nil
}

// Close closes every sender and receiver, then the client.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.closeTimeout)
	defer cancel()

	var errs []error
	for topic, s := range b.senders {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("topicmux/servicebus: close sender %q: %w", topic, err))
		}
	}
	for sub, r := range b.receivers {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("topicmux/servicebus: close receiver %s: %w", sub, err))
		}
	}
	if err := b.client.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("topicmux/servicebus: close client: %w", err))
	}
	return errors.Join(errs...)
}

func (b *Broker) sender(topic string) (sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrBrokerClosed
	}
	if s, ok := b.senders[topic]; ok {
		return s, nil
	}
	s, err := b.client.NewSender(topic)
	if err != nil {
		return nil, fmt.Errorf("topicmux/servicebus: open sender %q: %w", topic, err)
	}
	b.senders[topic] = s
	b.opts.logger.Debug("sender opened", zap.String("topic", topic))
	return s, nil
}

func (b *Broker) receiver(sub core.Subscription) (receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrBrokerClosed
	}
	if r, ok := b.receivers[sub]; ok {
		return r, nil
	}
	r, err := b.client.NewReceiver(sub.Topic, sub.Name, &azservicebus.ReceiverOptions{
		ReceiveMode: b.opts.receiveMode,
	})
	if err != nil {
		return nil, fmt.Errorf("topicmux/servicebus: open receiver %s: %w", sub, err)
	}
	b.receivers[sub] = r
	b.opts.logger.Debug("receiver opened", zap.Stringer("subscription", sub))
	return r, nil
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) ([]Option, error) {
	if cfg.Extra == nil {
		return nil, nil
	}
	var opts []Option
	if v, ok := cfg.Extra["receive_mode"].(string); ok {
		mode, err := ParseReceiveMode(v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithReceiveMode(mode))
	}
	if v, ok := cfg.Extra["application_id"].(string); ok {
		opts = append(opts, WithApplicationID(v))
	}
	if v, ok := cfg.Extra["max_retries"].(int); ok {
		delay, err := durationExtra(cfg.Extra, "retry_delay")
		if err != nil {
			return nil, err
		}
		maxDelay, err := durationExtra(cfg.Extra, "max_retry_delay")
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRetry(int32(v), delay, maxDelay))
	}
	if d, err := durationExtra(cfg.Extra, "close_timeout"); err != nil {
		return nil, err
	} else if d > 0 {
		opts = append(opts, WithCloseTimeout(d))
	}
	if l, ok := cfg.Extra["logger"].(*zap.Logger); ok {
		opts = append(opts, WithLogger(l))
	}
	return opts, nil
}

func durationExtra(extra map[string]any, key string) (time.Duration, error) {
	switch v := extra[key].(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("topicmux/servicebus: %s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("topicmux/servicebus: %s: unsupported type %T", key, v)
	}
}
