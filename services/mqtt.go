package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"unplug/config"
	"unplug/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mqttOperationTimeout = 10 * time.Second

// MQTTBus is the Bus implementation backed by an MQTT broker. The client holds
// one broker subscription per distinct pattern and fans each message out to
// every handler registered for that pattern.
type MQTTBus struct {
	config   *config.Config
	logger   *zap.Logger
	clientID string

	mu       sync.RWMutex
	client   mqtt.Client
	patterns []string
	handlers map[string][]MessageHandler
}

// NewMQTTBus creates a new MQTT bus instance; name is used as the client id prefix
func NewMQTTBus(cfg *config.Config, name string, logger *zap.Logger) *MQTTBus {
	return &MQTTBus{
		config:   cfg,
		logger:   logger,
		clientID: fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
		handlers: make(map[string][]MessageHandler),
	}
}

// Connect dials the broker with bounded retries. On failure the bus stays usable
// in degraded mode: publishes return ErrNotConnected and subscriptions never fire.
func (b *MQTTBus) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.config.MQTTBroker)
	opts.SetClientID(b.clientID)
	if b.config.MQTTUsername != "" {
		opts.SetUsername(b.config.MQTTUsername)
		opts.SetPassword(b.config.MQTTPassword)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)

	opts.OnConnect = func(client mqtt.Client) {
		b.logger.Info("Connected to MQTT broker",
			zap.String("broker", b.config.MQTTBroker),
			zap.String("client_id", b.clientID))
		b.resubscribe(client)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		b.logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	b.logger.Info("Connecting to MQTT broker", zap.String("broker", b.config.MQTTBroker))

	err := connectWithRetry(ctx, b.logger, b.config.MQTTBroker, b.config.ConnectMaxRetries, b.config.ConnectRetryDelay, func() error {
		token := client.Connect()
		if !token.WaitTimeout(mqttOperationTimeout) {
			return errors.New("connect timed out")
		}
		return token.Error()
	})
	if err != nil {
		b.logger.Warn("MQTT bus running in degraded mode", zap.Error(err))
		return err
	}
	return nil
}

func (b *MQTTBus) Disconnect() error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		b.logger.Info("Disconnected from MQTT broker")
	}
	return nil
}

func (b *MQTTBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil && b.client.IsConnectionOpen()
}

// Publish sends payload at QoS 0 and waits a bounded time for the write
func (b *MQTTBus) Publish(topic string, payload []byte) error {
	if !b.IsConnected() {
		b.logger.Debug("Skipping publish while disconnected", zap.String("topic", topic))
		return ErrNotConnected
	}

	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttOperationTimeout) {
		metrics.PublishFailures.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		metrics.PublishFailures.WithLabelValues("mqtt").Inc()
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for pattern. The first handler for a pattern
// creates the broker subscription, now if connected and on every reconnect.
func (b *MQTTBus) Subscribe(pattern string, handler MessageHandler) error {
	guarded := guardHandler(b.logger, nil, handler)

	b.mu.Lock()
	_, existing := b.handlers[pattern]
	if !existing {
		b.patterns = append(b.patterns, pattern)
	}
	b.handlers[pattern] = append(b.handlers[pattern], guarded)
	client := b.client
	b.mu.Unlock()

	if existing || client == nil || !client.IsConnectionOpen() {
		return nil
	}
	return b.apply(client, pattern)
}

func (b *MQTTBus) resubscribe(client mqtt.Client) {
	b.mu.RLock()
	patterns := append([]string(nil), b.patterns...)
	b.mu.RUnlock()

	for _, pattern := range patterns {
		if err := b.apply(client, pattern); err != nil {
			b.logger.Error("Failed to subscribe", zap.String("topic", pattern), zap.Error(err))
		}
	}
}

// dispatch delivers one message to every handler registered for pattern
func (b *MQTTBus) dispatch(pattern, topic string, payload []byte) {
	if !TopicMatches(pattern, topic) {
		return
	}

	b.mu.RLock()
	handlers := append([]MessageHandler(nil), b.handlers[pattern]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(topic, payload)
	}
}

func (b *MQTTBus) apply(client mqtt.Client, pattern string) error {
	token := client.Subscribe(pattern, 0, func(_ mqtt.Client, msg mqtt.Message) {
		b.dispatch(pattern, msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(mqttOperationTimeout) {
		return fmt.Errorf("subscribe to %s timed out", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	b.logger.Info("Subscribed to topic", zap.String("topic", pattern))
	return nil
}
