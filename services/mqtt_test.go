package services

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (m fakeMQTTMessage) Duplicate() bool   { return false }
func (m fakeMQTTMessage) Qos() byte         { return 0 }
func (m fakeMQTTMessage) Retained() bool    { return false }
func (m fakeMQTTMessage) Topic() string     { return m.topic }
func (m fakeMQTTMessage) MessageID() uint16 { return 0 }
func (m fakeMQTTMessage) Payload() []byte   { return m.payload }
func (m fakeMQTTMessage) Ack()              {}

// fakeMQTTClient mimics paho's router: one callback per subscribed topic,
// a repeated Subscribe replaces the previous callback.
type fakeMQTTClient struct {
	mu     sync.Mutex
	routes map[string]mqtt.MessageHandler
	calls  map[string]int
}

func newFakeMQTTClient() *fakeMQTTClient {
	return &fakeMQTTClient{
		routes: make(map[string]mqtt.MessageHandler),
		calls:  make(map[string]int),
	}
}

func (c *fakeMQTTClient) IsConnected() bool      { return true }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return true }
func (c *fakeMQTTClient) Connect() mqtt.Token    { return &mqtt.DummyToken{} }
func (c *fakeMQTTClient) Disconnect(uint)        {}

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.deliver(topic, payload.([]byte))
	return &mqtt.DummyToken{}
}

func (c *fakeMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[topic] = callback
	c.calls[topic]++
	return &mqtt.DummyToken{}
}

func (c *fakeMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &mqtt.DummyToken{}
}

func (c *fakeMQTTClient) Unsubscribe(...string) mqtt.Token        { return &mqtt.DummyToken{} }
func (c *fakeMQTTClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeMQTTClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	var matched []mqtt.MessageHandler
	for pattern, callback := range c.routes {
		if TopicMatches(pattern, topic) {
			matched = append(matched, callback)
		}
	}
	c.mu.Unlock()

	for _, callback := range matched {
		callback(c, fakeMQTTMessage{topic: topic, payload: payload})
	}
}

func (c *fakeMQTTClient) subscribeCalls(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[topic]
}

func TestMQTTBusFansOutHandlersOnSamePattern(t *testing.T) {
	cfg := testConfig(t)
	bus := NewMQTTBus(cfg, "test", zaptest.NewLogger(t))

	monitor, edge := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(cfg.TopicTelemetry, monitor.handle))

	client := newFakeMQTTClient()
	bus.mu.Lock()
	bus.client = client
	bus.mu.Unlock()
	bus.resubscribe(client)

	require.NoError(t, bus.Subscribe(cfg.TopicTelemetry, edge.handle))
	assert.Equal(t, 1, client.subscribeCalls(cfg.TopicTelemetry))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(cfg.TopicTelemetry, []byte(`{}`)))
	}

	assert.Len(t, monitor.Topics(), 5)
	assert.Len(t, edge.Topics(), 5)
}

func TestMQTTBusResubscribeKeepsEveryHandler(t *testing.T) {
	cfg := testConfig(t)
	bus := NewMQTTBus(cfg, "test", zaptest.NewLogger(t))

	status, wildcard := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(cfg.TopicSmartHomeStatus, status.handle))
	require.NoError(t, bus.Subscribe(cfg.ComponentTopic("+", "status"), wildcard.handle))

	client := newFakeMQTTClient()
	bus.mu.Lock()
	bus.client = client
	bus.mu.Unlock()
	bus.resubscribe(client)
	bus.resubscribe(client)

	require.NoError(t, bus.Publish(cfg.TopicSmartHomeStatus, []byte(`{}`)))
	require.NoError(t, bus.Publish(cfg.ComponentTopic("edge", "status"), []byte(`{}`)))

	assert.Equal(t, []string{cfg.TopicSmartHomeStatus}, status.Topics())
	assert.ElementsMatch(t, []string{cfg.TopicSmartHomeStatus, cfg.ComponentTopic("edge", "status")}, wildcard.Topics())
}

func TestMQTTBusPublishBeforeConnect(t *testing.T) {
	bus := NewMQTTBus(testConfig(t), "test", zaptest.NewLogger(t))

	assert.False(t, bus.IsConnected())
	assert.ErrorIs(t, bus.Publish("iot/edge/processed", []byte(`{}`)), ErrNotConnected)
	assert.NoError(t, bus.Subscribe("iot/edge/processed", func(string, []byte) {}))
}

func TestMQTTBusDegradedAfterFailedConnect(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTTBroker = "tcp://127.0.0.1:1"
	cfg.ConnectMaxRetries = 2
	cfg.ConnectRetryDelay = time.Millisecond
	bus := NewMQTTBus(cfg, "test", zaptest.NewLogger(t))

	err := bus.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")

	assert.False(t, bus.IsConnected())
	assert.ErrorIs(t, bus.Publish(cfg.TopicTelemetry, []byte(`{}`)), ErrNotConnected)
	assert.NoError(t, bus.Subscribe(cfg.TopicTelemetry, func(string, []byte) {}))
	assert.NoError(t, bus.Disconnect())
}
