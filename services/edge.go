package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"unplug/config"
	"unplug/metrics"
	"unplug/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EdgeService turns raw observations into derived metrics and insights
type EdgeService struct {
	config     *config.Config
	bus        Bus
	calculator *MetricCalculator
	engine     *InsightEngine
	logger     *zap.Logger
	status     *statusReporter
	producerID string
}

func NewEdgeService(cfg *config.Config, bus Bus, calculator *MetricCalculator, engine *InsightEngine, logger *zap.Logger) *EdgeService {
	return &EdgeService{
		config:     cfg,
		bus:        bus,
		calculator: calculator,
		engine:     engine,
		logger:     logger,
		status:     newStatusReporter(cfg, bus, "edge", ComponentEdgeLayer, logger),
		producerID: cfg.ServiceName + "-edge",
	}
}

// Subscribe registers the telemetry and control handlers
func (s *EdgeService) Subscribe() error {
	if err := s.bus.Subscribe(s.config.TopicTelemetry, s.status.guard(s.handleTelemetry)); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry: %w", err)
	}
	if err := s.bus.Subscribe(s.config.TopicControl, s.status.guard(s.handleControl)); err != nil {
		return fmt.Errorf("failed to subscribe to control: %w", err)
	}
	return nil
}

// Start subscribes and then blocks until ctx is cancelled
func (s *EdgeService) Start(ctx context.Context) error {
	if err := s.Subscribe(); err != nil {
		return err
	}

	s.logger.Info("Edge layer started",
		zap.String("telemetry_topic", s.config.TopicTelemetry),
		zap.String("control_topic", s.config.TopicControl))

	<-ctx.Done()
	s.logger.Info("Edge layer stopped")
	return nil
}

func (s *EdgeService) handleTelemetry(topic string, payload []byte) {
	start := time.Now()

	var obs models.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		s.logger.Warn("Failed to decode observation", zap.String("topic", topic), zap.Error(err))
		s.status.Failure(decodeFailureKind(payload), "", err)
		return
	}
	if err := obs.Validate(); err != nil {
		s.logger.Warn("Rejected observation", zap.String("entity_id", obs.EntityID), zap.Error(err))
		s.status.Failure(models.ErrorKindDecode, obs.EntityID, err)
		return
	}

	derived, insights := s.Process(&obs)

	report := models.AnalyticsReport{
		ProducerID:   s.producerID,
		EntityID:     obs.EntityID,
		Timestamp:    obs.Sample.Timestamp,
		Metrics:      derived,
		InsightCount: len(insights),
	}
	if err := publishJSON(s.bus, s.config.TopicProcessed, report); err != nil {
		s.logger.Debug("Failed to publish analytics report", zap.Error(err))
	}

	if len(insights) > 0 {
		batch := models.InsightBatch{
			ID:         uuid.NewString(),
			ProducerID: s.producerID,
			EntityID:   obs.EntityID,
			Timestamp:  obs.Sample.Timestamp,
			Insights:   make([]models.Insight, 0, len(insights)),
		}
		for _, in := range insights {
			batch.Insights = append(batch.Insights, *in)
		}
		if err := publishJSON(s.bus, s.config.TopicInsights, batch); err != nil {
			s.logger.Debug("Failed to publish insights", zap.Error(err))
		}
	}

	s.status.Healthy(obs.EntityID, time.Since(start))
}

// Process computes metrics for a validated observation and feeds it to the insight engine
func (s *EdgeService) Process(obs *models.Observation) (models.DerivedMetrics, []*models.Insight) {
	derived := s.calculator.Compute(obs)
	insights := s.engine.Ingest(obs.EntityID, &obs.Sample, derived)

	for _, in := range insights {
		metrics.InsightsEmitted.WithLabelValues(in.PatternType, string(in.Severity)).Inc()
		s.logger.Info(in.GetPatternEmoji()+" Insight detected",
			zap.String("entity_id", obs.EntityID),
			zap.String("pattern", in.PatternType),
			zap.String("severity", string(in.Severity)),
			zap.String("description", in.Description))
	}

	s.logger.Debug("Observation processed",
		zap.String("entity_id", obs.EntityID),
		zap.Float64("usage_intensity", derived.UsageIntensity),
		zap.Float64("context_score", derived.ContextScore),
		zap.Float64("wellness_indicator", derived.WellnessIndicator),
		zap.Int("insights", len(insights)))

	return derived, insights
}

func (s *EdgeService) handleControl(topic string, payload []byte) {
	var cmd models.ControlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.logger.Warn("Failed to decode control command", zap.String("topic", topic), zap.Error(err))
		s.status.Failure(decodeFailureKind(payload), "", err)
		return
	}

	if err := s.engine.ApplyControl(cmd); err != nil {
		s.logger.Warn("Control command rejected",
			zap.String("type", cmd.Type),
			zap.String("entity_id", cmd.EntityID),
			zap.Error(err))
		return
	}

	s.logger.Info("Control command applied",
		zap.String("type", cmd.Type),
		zap.String("entity_id", cmd.EntityID))
}
