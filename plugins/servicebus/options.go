package servicebus

import (
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"go.uber.org/zap"
)

// Option configures the Service Bus broker.
type Option func(*options)

type options struct {
	// Client
	applicationID string
	retry         azservicebus.RetryOptions

	// Receiver
	receiveMode    azservicebus.ReceiveMode
	subscribeBatch int
	subscribeWait  time.Duration

	// General
	closeTimeout time.Duration
	logger       *zap.Logger
}

func defaults() options {
	return options{
		receiveMode:    azservicebus.ReceiveModePeekLock,
		subscribeBatch: 10,
		subscribeWait:  30 * time.Second,
		closeTimeout:   10 * time.Second,
		logger:         zap.NewNop(),
	}
}

// WithReceiveMode selects peek-lock (settle explicitly) or
// receive-and-delete (settled on delivery).
func WithReceiveMode(m azservicebus.ReceiveMode) Option {
	return func(o *options) { o.receiveMode = m }
}

// WithApplicationID sets the application id reported to the service.
func WithApplicationID(id string) Option {
	return func(o *options) { o.applicationID = id }
}

// WithRetry overrides the SDK retry policy. Zero durations keep the SDK defaults.
func WithRetry(maxRetries int32, delay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retry = azservicebus.RetryOptions{
			MaxRetries:    maxRetries,
			RetryDelay:    delay,
			MaxRetryDelay: maxDelay,
		}
	}
}

// WithSubscribeBatch sets the batch bounds used by Subscribe's receive loop.
func WithSubscribeBatch(n int, wait time.Duration) Option {
	return func(o *options) {
		o.subscribeBatch = n
		o.subscribeWait = wait
	}
}

// WithCloseTimeout bounds how long Close waits for links to detach.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) { o.closeTimeout = d }
}

// WithLogger sets the logger used for link lifecycle and settlement failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// ParseReceiveMode maps "peeklock" and "receiveanddelete" (case and
// separator insensitive) to the SDK receive modes.
func ParseReceiveMode(s string) (azservicebus.ReceiveMode, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch norm {
	case "", "peeklock":
		return azservicebus.ReceiveModePeekLock, nil
	case "receiveanddelete":
		return azservicebus.ReceiveModeReceiveAndDelete, nil
	default:
		return 0, fmt.Errorf("topicmux/servicebus: unknown receive mode %q", s)
	}
}
