package core

import "github.com/google/uuid"

// Well-known header names. Plugins map these onto native message
// properties where the broker has them (e.g. Service Bus Subject).
const (
	HeaderContentType   = "content-type"
	HeaderSubject       = "subject"
	HeaderCorrelationID = "correlation-id"
)

// Envelope is an outgoing message built by publishers.
// Ack and Nack are no-ops; an Envelope was never delivered.
type Envelope struct {
	K []byte
	V []byte
	H map[string]string
}

// NewEnvelope returns an Envelope carrying body, keyed by a random UUID.
func NewEnvelope(body []byte) *Envelope {
	return &Envelope{
		K: []byte(uuid.NewString()),
		V: body,
		H: make(map[string]string),
	}
}

// NewTextEnvelope is NewEnvelope for a text payload.
func NewTextEnvelope(text string) *Envelope {
	e := NewEnvelope([]byte(text))
	e.H[HeaderContentType] = "text/plain"
	return e
}

// WithHeader sets a header and returns the Envelope for chaining.
func (e *Envelope) WithHeader(key, val string) *Envelope {
	if e.H == nil {
		e.H = make(map[string]string)
	}
	e.H[key] = val
	return e
}

func (e *Envelope) Key() []byte                { return e.K }
func (e *Envelope) Value() []byte              { return e.V }
func (e *Envelope) Headers() map[string]string { return e.H }
func (e *Envelope) Ack() error                 { return nil }
func (e *Envelope) Nack() error                { return nil }
