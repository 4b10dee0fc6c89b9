package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/topicmux/core"
)

// message adapts a kafka.Message to core.Message.
// It holds the reader of its consumer group for offset commits.
type message struct {
	raw    kafka.Message
	reader fetcher
	ctx    context.Context

	mu      sync.Mutex
	settled bool
}

func (m *message) Key() []byte    { return m.raw.Key }
func (m *message) Value() []byte  { return m.raw.Value }
func (m *message) String() string { return string(m.raw.Value) }

func (m *message) Headers() map[string]string {
	return fromHeaders(m.raw.Headers)
}

// Ack commits the offset for this message.
func (m *message) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return core.ErrAlreadySettled
	}
	if err := m.reader.CommitMessages(m.ctx, m.raw); err != nil {
		return fmt.Errorf("topicmux/kafka: commit offset %d on %q: %w", m.raw.Offset, m.raw.Topic, err)
	}
	m.settled = true
	return nil
}

// Nack settles the message without committing its offset, so the group
// redelivers it after the next rebalance or restart.
func (m *message) Nack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return core.ErrAlreadySettled
	}
	m.settled = true
	return nil
}

func fromHeaders(hs []kafka.Header) map[string]string {
	h := make(map[string]string, len(hs))
	for _, kh := range hs {
		h[kh.Key] = string(kh.Value)
	}
	return h
}
