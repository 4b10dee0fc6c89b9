package nats

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/topicmux/core"
)

// message adapts a JetStream message to core.Message.
type message struct {
	msg jetstream.Msg

	mu      sync.Mutex
	settled bool
}

// Key returns the publisher's message id when set, else the subject.
func (m *message) Key() []byte {
	if id := m.msg.Headers().Get(nats.MsgIdHdr); id != "" {
		return []byte(id)
	}
	return []byte(m.msg.Subject())
}

func (m *message) Value() []byte  { return m.msg.Data() }
func (m *message) String() string { return string(m.msg.Data()) }

func (m *message) Headers() map[string]string {
	return flattenHeaders(m.msg.Headers())
}

// Ack acknowledges the message, marking it as processed.
func (m *message) Ack() error {
	return m.settle("ack", m.msg.Ack)
}

// Nack signals that the message could not be processed.
// The server will redeliver it according to the consumer's MaxDeliver setting.
func (m *message) Nack() error {
	return m.settle("nack", m.msg.Nak)
}

func (m *message) settle(op string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return core.ErrAlreadySettled
	}
	if err := fn(); err != nil {
		return fmt.Errorf("topicmux/nats: %s: %w", op, err)
	}
	m.settled = true
	return nil
}

// flattenHeaders keeps the first value of each header, skipping the
// JetStream message id which surfaces as Key.
func flattenHeaders(raw nats.Header) map[string]string {
	h := make(map[string]string, len(raw))
	for k, v := range raw {
		if k == nats.MsgIdHdr {
			continue
		}
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}
