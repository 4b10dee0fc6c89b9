package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/internal/mock"
)

func TestContext_BindJSON(t *testing.T) {
	msg := &mock.Message{V: []byte(`{"id":7,"note":"hi"}`)}
	c := core.NewContext(context.Background(), msg, tutorialSub, nil, core.JSONBinder{})

	var got struct {
		ID   int    `json:"id"`
		Note string `json:"note"`
	}
	require.NoError(t, c.Bind(&got))
	assert.Equal(t, 7, got.ID)
	assert.Equal(t, "hi", got.Note)
}

func TestContext_BindText(t *testing.T) {
	msg := &mock.Message{V: []byte("plain body")}
	c := core.NewContext(context.Background(), msg, tutorialSub, nil, core.TextBinder{})

	var s string
	require.NoError(t, c.Bind(&s))
	assert.Equal(t, "plain body", s)

	var n int
	assert.Error(t, c.Bind(&n))
}

func TestContext_NoBinder(t *testing.T) {
	c := core.NewContext(context.Background(), &mock.Message{}, tutorialSub, nil, nil)
	assert.Error(t, c.Bind(&struct{}{}))
}

func TestContext_AckNackWrapErrors(t *testing.T) {
	lost := errors.New("lock lost")
	msg := &mock.Message{AckErr: lost, NackErr: lost}
	c := core.NewContext(context.Background(), msg, tutorialSub, nil, nil)

	assert.ErrorIs(t, c.Ack(), lost)
	assert.ErrorIs(t, c.Nack(), lost)
	assert.Equal(t, 1, msg.Acks())
	assert.Equal(t, 1, msg.Nacks())
}

func TestContext_Republish(t *testing.T) {
	mb := mock.NewBroker()
	msg := &mock.Message{K: []byte("k"), V: []byte("v"), H: map[string]string{"a": "b"}}
	c := core.NewContext(context.Background(), msg, tutorialSub, mb, nil)

	require.NoError(t, c.Republish("dead-letters"))

	pubs := mb.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "dead-letters", pubs[0].Topic)
	assert.Equal(t, []byte("v"), pubs[0].Message.Value())
	assert.Equal(t, "b", pubs[0].Message.Headers()["a"])
}

func TestContext_RepublishWithoutBroker(t *testing.T) {
	c := core.NewContext(context.Background(), &mock.Message{}, tutorialSub, nil, nil)
	assert.ErrorIs(t, c.Republish("x"), core.ErrNoBroker)
}

func TestContext_Store(t *testing.T) {
	c := core.NewContext(context.Background(), &mock.Message{}, tutorialSub, nil, nil)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("attempt", 3)
	v, ok := c.Get("attempt")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
