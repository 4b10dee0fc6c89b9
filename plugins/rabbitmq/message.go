package rabbitmq

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/topicmux/core"
)

// message adapts an amqp.Delivery to core.Message.
type message struct {
	delivery amqp.Delivery
	requeue  bool

	mu      sync.Mutex
	settled bool
}

// Key returns the publisher's message id, falling back to the routing key.
func (m *message) Key() []byte {
	if m.delivery.MessageId != "" {
		return []byte(m.delivery.MessageId)
	}
	return []byte(m.delivery.RoutingKey)
}

func (m *message) Value() []byte  { return m.delivery.Body }
func (m *message) String() string { return string(m.delivery.Body) }

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.delivery.Headers)+1)
	for k, v := range m.delivery.Headers {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	if m.delivery.ContentType != "" {
		h[core.HeaderContentType] = m.delivery.ContentType
	}
	return h
}

// Ack acknowledges the message, removing it from the queue.
func (m *message) Ack() error {
	return m.settle("ack", func() error { return m.delivery.Ack(false) })
}

// Nack negatively acknowledges the message. If requeue is enabled,
// the message is returned to the queue for redelivery.
func (m *message) Nack() error {
	return m.settle("nack", func() error { return m.delivery.Nack(false, m.requeue) })
}

func (m *message) settle(op string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return core.ErrAlreadySettled
	}
	if err := fn(); err != nil {
		return fmt.Errorf("topicmux/rabbitmq: %s: %w", op, err)
	}
	m.settled = true
	return nil
}
