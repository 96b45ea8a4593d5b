package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/events"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type mockClient struct {
	mqtt.Client
	mock.Mock
}

func (m *mockClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.Called(topic, qos, retained, payload)
	return doneToken{}
}

func newTestHandler(client mqtt.Client) *MQTTHandler {
	return &MQTTHandler{
		cfg:      config.MQTTConfig{TopicPrefix: "skeld"},
		client:   client,
		now:      func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		metadata: map[string]interface{}{"hostname": "test"},
	}
}

func TestNewHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.DefaultConfig(), events.NewEventBus(), nil)
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	h := newTestHandler(nil)
	assert.Equal(t, "skeld/rooms/ABCDEF/game_started", h.roomTopic("ABCDEF", events.EventGameStarted))
	assert.Equal(t, "skeld/server/lag", h.topic(TopicLag))

	h.cfg.TopicPrefix = ""
	assert.Equal(t, "server/status", h.topic(TopicServerStatus))
}

func TestPublishRoomEvent(t *testing.T) {
	client := &mockClient{}
	client.On("IsConnected").Return(true)
	client.On("Publish", "skeld/rooms/ABCDEF/game_ended", byte(1), false, mock.Anything).Return()

	h := newTestHandler(client)
	bus := events.NewEventBus()
	h.eventBus = bus
	h.subscribeEvents()

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventGameEnded,
		Source:  "ABCDEF",
		Payload: events.GameEndedPayload{Code: "ABCDEF", Winners: "impostors"},
	}))

	client.AssertExpectations(t)
	data := client.Calls[1].Arguments.Get(3).([]byte)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "test", msg["hostname"])
	assert.Equal(t, "2026-01-01T00:00:00Z", msg["timestamp"])
	payload := msg["payload"].(map[string]interface{})
	assert.Equal(t, "impostors", payload["Winners"])
}

func TestPublishSkippedWhenDisconnected(t *testing.T) {
	client := &mockClient{}
	client.On("IsConnected").Return(false)

	h := newTestHandler(client)
	h.PublishShutdown()

	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
