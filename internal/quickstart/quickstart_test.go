package quickstart

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/internal/mock"
)

var tutorialSub = core.Subscription{Topic: "tutorial-topic", Name: "tutorial-subscription"}

func TestPublish(t *testing.T) {
	mb := mock.NewBroker()
	var out bytes.Buffer

	env := core.NewTextEnvelope("You can use Azure Service Bus")
	require.NoError(t, Publish(context.Background(), mb, "tutorial-topic", env, &out))

	assert.Equal(t, SentLine+"\n", out.String())
	pubs := mb.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "tutorial-topic", pubs[0].Topic)
	assert.Equal(t, env, pubs[0].Message)
}

func TestPublish_ErrorPrintsNothing(t *testing.T) {
	mb := mock.NewBroker()
	mb.PublishErr = errors.New("unauthorized")
	var out bytes.Buffer

	err := Publish(context.Background(), mb, "tutorial-topic", core.NewTextEnvelope("x"), &out)
	assert.EqualError(t, err, "unauthorized")
	assert.Empty(t, out.String())
}

func TestPublish_NilBroker(t *testing.T) {
	assert.ErrorIs(t, Publish(context.Background(), nil, "t", core.NewTextEnvelope("x"), &bytes.Buffer{}), core.ErrNoBroker)
}

func TestReceive_PrintsAndCompletesEach(t *testing.T) {
	mb := mock.NewBroker()
	a := &mock.Message{K: []byte("1"), V: []byte("first")}
	b := &mock.Message{K: []byte("2"), V: []byte("second")}
	mb.Enqueue(tutorialSub, a, b)
	var out bytes.Buffer

	n, err := Receive(context.Background(), mb, tutorialSub, core.DefaultReceiveOptions(), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Received: first\nReceived: second\n", out.String())
	assert.Equal(t, 1, a.Acks())
	assert.Equal(t, 1, b.Acks())
	assert.Zero(t, a.Nacks())
}

func TestReceive_RespectsMaxMessages(t *testing.T) {
	mb := mock.NewBroker()
	for i := 0; i < 25; i++ {
		mb.Enqueue(tutorialSub, &mock.Message{V: []byte("m")})
	}

	n, err := Receive(context.Background(), mb, tutorialSub, core.DefaultReceiveOptions(), &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = Receive(context.Background(), mb, tutorialSub, core.DefaultReceiveOptions(), &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestReceive_EmptyWindow(t *testing.T) {
	mb := mock.NewBroker()
	var out bytes.Buffer

	opts := core.ReceiveOptions{MaxMessages: 20, MaxWait: 20 * time.Millisecond}
	n, err := Receive(context.Background(), mb, tutorialSub, opts, &out, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, out.String())
}

func TestReceive_CompletionFailureDoesNotStopBatch(t *testing.T) {
	mb := mock.NewBroker()
	lost := errors.New("lock lost")
	bad := &mock.Message{K: []byte("bad"), V: []byte("one"), AckErr: lost}
	good := &mock.Message{K: []byte("good"), V: []byte("two")}
	mb.Enqueue(tutorialSub, bad, good)
	var out bytes.Buffer

	n, err := Receive(context.Background(), mb, tutorialSub, core.DefaultReceiveOptions(), &out, nil)
	assert.ErrorIs(t, err, lost)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Received: one\nReceived: two\n", out.String())
	assert.Equal(t, 1, good.Acks())
}

func TestReceive_BrokerError(t *testing.T) {
	mb := mock.NewBroker()
	mb.ReceiveErr = errors.New("subscription not found")

	_, err := Receive(context.Background(), mb, tutorialSub, core.DefaultReceiveOptions(), &bytes.Buffer{}, nil)
	assert.EqualError(t, err, "subscription not found")
}

func TestReceive_InvalidOptions(t *testing.T) {
	_, err := Receive(context.Background(), mock.NewBroker(), tutorialSub, core.ReceiveOptions{}, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidReceiveOptions)
}
