package servicebus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/miladsoleymani/topicmux/core"
)

// message adapts an azservicebus.ReceivedMessage to core.Message.
// Ack completes the message, Nack abandons it. In receive-and-delete
// mode the service has already settled it and both are no-ops.
type message struct {
	raw      *azservicebus.ReceivedMessage
	receiver receiver
	ctx      context.Context
	// autoSettled is set in receive-and-delete mode.
	autoSettled bool

	mu      sync.Mutex
	settled bool
}

func newMessage(ctx context.Context, raw *azservicebus.ReceivedMessage, r receiver, mode azservicebus.ReceiveMode) *message {
	return &message{
		raw:         raw,
		receiver:    r,
		ctx:         ctx,
		autoSettled: mode == azservicebus.ReceiveModeReceiveAndDelete,
	}
}

func (m *message) Key() []byte   { return []byte(m.raw.MessageID) }
func (m *message) Value() []byte { return m.raw.Body }

// String returns the body, which is what a received message prints as.
func (m *message) String() string { return string(m.raw.Body) }

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.raw.ApplicationProperties)+3)
	for k, v := range m.raw.ApplicationProperties {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	if m.raw.ContentType != nil {
		h[core.HeaderContentType] = *m.raw.ContentType
	}
	if m.raw.Subject != nil {
		h[core.HeaderSubject] = *m.raw.Subject
	}
	if m.raw.CorrelationID != nil {
		h[core.HeaderCorrelationID] = *m.raw.CorrelationID
	}
	return h
}

// DeliveryCount reports how many times the service has delivered this message.
func (m *message) DeliveryCount() uint32 { return m.raw.DeliveryCount }

// Ack completes the message, removing it from the subscription.
func (m *message) Ack() error {
	return m.settle("complete", func(ctx context.Context) error {
		return m.receiver.CompleteMessage(ctx, m.raw, nil)
	})
}

// Nack abandons the message, releasing its lock for redelivery.
func (m *message) Nack() error {
	return m.settle("abandon", func(ctx context.Context) error {
		return m.receiver.AbandonMessage(ctx, m.raw, nil)
	})
}

// DeadLetter moves the message to the subscription's dead-letter queue.
func (m *message) DeadLetter(reason, description string) error {
	return m.settle("dead-letter", func(ctx context.Context) error {
		return m.receiver.DeadLetterMessage(ctx, m.raw, &azservicebus.DeadLetterOptions{
			Reason:           to.Ptr(reason),
			ErrorDescription: to.Ptr(description),
		})
	})
}

func (m *message) settle(op string, fn func(context.Context) error) error {
	if m.autoSettled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return core.ErrAlreadySettled
	}
	if err := fn(m.ctx); err != nil {
		var sbErr *azservicebus.Error
		if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeLockLost {
			return fmt.Errorf("topicmux/servicebus: %s %q: %w", op, m.raw.MessageID, core.ErrLockLost)
		}
		return fmt.Errorf("topicmux/servicebus: %s %q: %w", op, m.raw.MessageID, err)
	}
	m.settled = true
	return nil
}

// toSDKMessage converts an outgoing core.Message. Well-known headers map
// onto native properties; the rest become application properties.
func toSDKMessage(msg core.Message) *azservicebus.Message {
	out := &azservicebus.Message{Body: msg.Value()}
	if k := msg.Key(); len(k) > 0 {
		out.MessageID = to.Ptr(string(k))
	}
	for k, v := range msg.Headers() {
		switch k {
		case core.HeaderContentType:
			out.ContentType = to.Ptr(v)
		case core.HeaderSubject:
			out.Subject = to.Ptr(v)
		case core.HeaderCorrelationID:
			out.CorrelationID = to.Ptr(v)
		default:
			if out.ApplicationProperties == nil {
				out.ApplicationProperties = make(map[string]any)
			}
			out.ApplicationProperties[k] = v
		}
	}
	return out
}
