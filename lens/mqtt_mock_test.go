package lens

import (
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/x/c", true},
		{"a/+/c", "a/x/y/c", false},
		{"a/#", "a/x/y/c", true},
		{"a/#", "b/x", false},
		{"#", "anything/at/all", true},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, topicMatches(tt.filter, tt.topic))
		})
	}
}

func TestMockClient_Publish(t *testing.T) {
	c := NewMockClient()

	tok := c.Publish("t", 0, false, []byte("x"))
	assert.ErrorIs(t, tok.Error(), mqtt.ErrNotConnected)

	c.SetConnected(true)
	assert.NoError(t, c.Publish("t/bytes", 1, true, []byte("x")).Error())
	assert.NoError(t, c.Publish("t/string", 0, false, "y").Error())

	msgs := c.GetPublishedMessages()
	if assert.Len(t, msgs, 2) {
		assert.Equal(t, MockMessage{Topic: "t/bytes", Payload: []byte("x"), QoS: 1, Retain: true}, msgs[0])
		assert.Equal(t, "y", string(msgs[1].Payload))
	}

	c.SetPublishError(errors.New("full"))
	assert.EqualError(t, c.Publish("t", 0, false, "z").Error(), "full")
	assert.Len(t, c.GetPublishedMessages(), 2)
}

func TestMockClient_Subscriptions(t *testing.T) {
	c := NewMockClient()
	var got []string
	handler := func(_ mqtt.Client, m mqtt.Message) { got = append(got, m.Topic()) }

	assert.Error(t, c.Subscribe("a/#", 0, handler).Error(), "subscribe needs a connection")

	c.SetConnected(true)
	assert.NoError(t, c.Subscribe("a/#", 0, handler).Error())
	assert.NoError(t, c.SubscribeMultiple(map[string]byte{"b/+": 0}, handler).Error())

	c.SimulateMessage("a/1", nil)
	c.SimulateMessage("b/2", nil)
	c.SimulateMessage("c/3", nil)
	assert.Equal(t, []string{"a/1", "b/2"}, got)

	c.Unsubscribe("a/#")
	c.SimulateMessage("a/1", nil)
	assert.Len(t, got, 2)

	c.AddRoute("c/3", handler)
	c.SimulateMessage("c/3", nil)
	assert.Equal(t, "c/3", got[len(got)-1])

	c.Disconnect(0)
	assert.False(t, c.IsConnectionOpen())
}

func TestMockToken(t *testing.T) {
	tok := NewMockToken(nil)
	assert.True(t, tok.Wait())
	assert.True(t, tok.WaitTimeout(0))
	select {
	case <-tok.Done():
	default:
		t.Error("Done channel should be closed")
	}
}
