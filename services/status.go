package services

import (
	"encoding/json"
	"fmt"
	"time"

	"unplug/config"
	"unplug/metrics"
	"unplug/models"

	"go.uber.org/zap"
)

// statusReporter publishes a component's own health reports to <prefix>/<segment>/status
type statusReporter struct {
	bus       Bus
	logger    *zap.Logger
	topic     string
	component string
}

func newStatusReporter(cfg *config.Config, bus Bus, segment, component string, logger *zap.Logger) *statusReporter {
	return &statusReporter{
		bus:       bus,
		logger:    logger,
		topic:     cfg.ComponentTopic(segment, "status"),
		component: component,
	}
}

// Healthy reports a successfully processed message and how long it took
func (s *statusReporter) Healthy(entityID string, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	metrics.ProcessingDuration.WithLabelValues(s.component).Observe(seconds)
	s.publish(models.ComponentReport{
		Component:    s.component,
		Status:       models.ComponentHealthy,
		Timestamp:    time.Now(),
		EntityID:     entityID,
		ResponseTime: &seconds,
	})
}

// Failure reports a decode or processing error
func (s *statusReporter) Failure(kind, entityID string, err error) {
	if kind == models.ErrorKindProcessing {
		metrics.ProcessingErrors.WithLabelValues(s.component).Inc()
	}
	s.publish(models.ComponentReport{
		Component: s.component,
		Status:    models.ComponentDegraded,
		Timestamp: time.Now(),
		EntityID:  entityID,
		Error:     fmt.Sprintf("%s error: %v", kind, err),
		ErrorKind: kind,
	})
}

// decodeFailureKind classifies a payload that could not be decoded
func decodeFailureKind(payload []byte) string {
	if !json.Valid(payload) {
		return models.ErrorKindMalformed
	}
	return models.ErrorKindDecode
}

// guard wraps a handler so panics are reported as processing errors
func (s *statusReporter) guard(handler MessageHandler) MessageHandler {
	return guardHandler(s.logger, func(_ string, err error) {
		s.Failure(models.ErrorKindProcessing, "", err)
	}, handler)
}

func (s *statusReporter) publish(report models.ComponentReport) {
	if err := publishJSON(s.bus, s.topic, report); err != nil {
		s.logger.Debug("Failed to publish component status",
			zap.String("component", s.component),
			zap.Error(err))
	}
}
