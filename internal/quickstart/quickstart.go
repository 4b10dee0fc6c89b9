// Package quickstart holds the two tutorial programs: send one message to
// a topic, and receive-and-complete one bounded batch from a subscription.
package quickstart

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/core"
)

const (
	// SentLine confirms a successful publish.
	SentLine = "Secure Message Successfully sent"

	// Separator is printed once the publisher has shut down.
	Separator = "-----------------------"
)

// Publish sends msg to topic and writes the confirmation line to out.
func Publish(ctx context.Context, b core.Broker, topic string, msg core.Message, out io.Writer) error {
	if b == nil {
		return core.ErrNoBroker
	}
	if err := b.Publish(ctx, topic, msg); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, SentLine)
	return err
}

// Receive runs one bounded receive on sub. Each message is written to out
// as "Received: <body>" and then completed. A completion failure does not
// stop the batch; all such failures are joined into the returned error.
// It returns the number of messages completed.
func Receive(ctx context.Context, b core.Broker, sub core.Subscription, opts core.ReceiveOptions, out io.Writer, log *zap.Logger) (int, error) {
	if b == nil {
		return 0, core.ErrNoBroker
	}
	if log == nil {
		log = zap.NewNop()
	}

	msgs, err := b.Receive(ctx, sub, opts)
	if err != nil {
		return 0, err
	}
	log.Debug("batch received", zap.Stringer("subscription", sub), zap.Int("count", len(msgs)))

	var (
		completed int
		errs      []error
	)
	for _, msg := range msgs {
		if _, err := fmt.Fprintf(out, "Received: %s\n", msg.Value()); err != nil {
			return completed, err
		}
		if err := msg.Ack(); err != nil {
			log.Warn("complete failed", zap.ByteString("message_id", msg.Key()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		completed++
	}
	return completed, errors.Join(errs...)
}
