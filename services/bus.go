package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MessageHandler receives one inbound message
type MessageHandler func(topic string, payload []byte)

// Bus is the publish/subscribe transport every tier talks through.
// Delivery is at-most-once and unordered across publishers.
type Bus interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Publish(topic string, payload []byte) error
	Subscribe(pattern string, handler MessageHandler) error
	IsConnected() bool
}

var ErrNotConnected = errors.New("bus not connected")

// connectWithRetry calls dial up to maxRetries times, waiting delay between attempts
func connectWithRetry(ctx context.Context, logger *zap.Logger, target string, maxRetries int, delay time.Duration, dial func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = dial(); err == nil {
			return nil
		}

		logger.Warn("Failed to connect to broker",
			zap.String("broker", target),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("failed to connect to %s after %d attempts: %w", target, maxRetries, err)
}

// publishJSON marshals v and publishes it on topic
func publishJSON(bus Bus, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return bus.Publish(topic, payload)
}

// guardHandler converts a panic inside handler into a call to onPanic so one bad
// message cannot stop a delivery goroutine.
func guardHandler(logger *zap.Logger, onPanic func(topic string, err error), handler MessageHandler) MessageHandler {
	return func(topic string, payload []byte) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("handler panic: %v", r)
				logger.Error("Recovered from handler panic",
					zap.String("topic", topic),
					zap.Error(err))
				if onPanic != nil {
					onPanic(topic, err)
				}
			}
		}()
		handler(topic, payload)
	}
}
