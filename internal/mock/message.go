package mock

import "sync"

// Message is a simple core.Message implementation for testing.
// It counts settlements so tests can assert a message was completed once.
type Message struct {
	K       []byte
	V       []byte
	H       map[string]string
	AckErr  error
	NackErr error

	mu    sync.Mutex
	acks  int
	nacks int
}

func (m *Message) Key() []byte                { return m.K }
func (m *Message) Value() []byte              { return m.V }
func (m *Message) Headers() map[string]string { return m.H }

func (m *Message) Ack() error {
	m.mu.Lock()
	m.acks++
	m.mu.Unlock()
	return m.AckErr
}

func (m *Message) Nack() error {
	m.mu.Lock()
	m.nacks++
	m.mu.Unlock()
	return m.NackErr
}

// Acks returns how many times Ack was called.
func (m *Message) Acks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks
}

// Nacks returns how many times Nack was called.
func (m *Message) Nacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacks
}
