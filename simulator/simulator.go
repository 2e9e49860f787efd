package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Publisher is the part of the bus the simulator needs
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Simulator publishes one generated observation per interval
type Simulator struct {
	generator *Generator
	publisher Publisher
	topic     string
	interval  time.Duration
	logger    *zap.Logger
	sent      int
}

func NewSimulator(generator *Generator, publisher Publisher, topic string, interval time.Duration, logger *zap.Logger) *Simulator {
	return &Simulator{
		generator: generator,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		logger:    logger,
	}
}

// PublishOne generates and publishes a single observation
func (s *Simulator) PublishOne() error {
	obs := s.generator.Next()
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}
	if err := s.publisher.Publish(s.topic, payload); err != nil {
		return err
	}

	s.sent++
	s.logger.Debug("Observation published",
		zap.String("entity_id", obs.EntityID),
		zap.String("location", string(obs.Sample.Location)),
		zap.Float64("screen_time", obs.Sample.ScreenTime))
	return nil
}

// Run publishes until ctx is cancelled. Publish failures are logged and the loop continues.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Simulator started",
		zap.String("topic", s.topic),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Simulator stopped", zap.Int("total_messages", s.sent))
			return nil
		case <-ticker.C:
			if err := s.PublishOne(); err != nil {
				s.logger.Warn("Failed to publish observation", zap.Error(err))
			}
		}
	}
}

// Sent returns how many observations were published
func (s *Simulator) Sent() int {
	return s.sent
}
