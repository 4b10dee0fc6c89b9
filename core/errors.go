package core

import "errors"

var (
	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("topicmux: broker is closed")

	// ErrNoHandler is returned when no handler is registered for a subscription.
	ErrNoHandler = errors.New("topicmux: no handler registered for subscription")

	// ErrAlreadyStarted is returned when Start is called on a running router.
	ErrAlreadyStarted = errors.New("topicmux: router already started")

	// ErrNoBroker is returned when a router is created without a broker.
	ErrNoBroker = errors.New("topicmux: broker is nil")

	// ErrInvalidReceiveOptions is returned when a receive is requested with
	// non-positive bounds.
	ErrInvalidReceiveOptions = errors.New("topicmux: invalid receive options")

	// ErrAlreadySettled is returned when a message is acked or nacked twice.
	ErrAlreadySettled = errors.New("topicmux: message already settled")

	// ErrLockLost is returned when the broker no longer holds the lock on a
	// message; it will be redelivered.
	ErrLockLost = errors.New("topicmux: message lock lost")
)
