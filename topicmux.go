// Package topicmux provides the top-level API for topicmux.
// It re-exports core types for convenience, so users can write:
//
//	r := topicmux.New(b)
//	r.Handle("tutorial-topic", "tutorial-subscription", handler)
//	r.Start(ctx)
package topicmux

import (
	"github.com/miladsoleymani/topicmux/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Message        = core.Message
	Handler        = core.Handler
	HandlerFunc    = core.HandlerFunc
	MiddlewareFunc = core.MiddlewareFunc
	Context        = core.Context
	Broker         = core.Broker
	Router         = core.Router
	Subscription   = core.Subscription
	ReceiveOptions = core.ReceiveOptions
	Envelope       = core.Envelope
)

// New creates a new Router bound to the given Broker.
func New(b Broker) *Router {
	return core.New(b)
}

// NewTextEnvelope returns a text/plain message ready to publish.
func NewTextEnvelope(text string) *Envelope {
	return core.NewTextEnvelope(text)
}
