package servicebus

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// The narrow slices of the azservicebus API the broker depends on.
// *azservicebus.Sender and *azservicebus.Receiver satisfy them directly.

type sender interface {
	SendMessage(ctx context.Context, msg *azservicebus.Message, opts *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

type receiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, opts *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, msg *azservicebus.ReceivedMessage, opts *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, msg *azservicebus.ReceivedMessage, opts *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, msg *azservicebus.ReceivedMessage, opts *azservicebus.DeadLetterOptions) error
	Close(ctx context.Context) error
}

type client interface {
	NewSender(topic string) (sender, error)
	NewReceiver(topic, subscription string, opts *azservicebus.ReceiverOptions) (receiver, error)
	Close(ctx context.Context) error
}

// sdkClient adapts *azservicebus.Client to client.
type sdkClient struct {
	c *azservicebus.Client
}

func (s *sdkClient) NewSender(topic string) (sender, error) {
	snd, err := s.c.NewSender(topic, nil)
	if err != nil {
		return nil, err
	}
	return snd, nil
}

func (s *sdkClient) NewReceiver(topic, subscription string, opts *azservicebus.ReceiverOptions) (receiver, error) {
	rcv, err := s.c.NewReceiverForSubscription(topic, subscription, opts)
	if err != nil {
		return nil, err
	}
	return rcv, nil
}

func (s *sdkClient) Close(ctx context.Context) error {
	return s.c.Close(ctx)
}
