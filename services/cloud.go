package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"unplug/config"
	"unplug/metrics"
	"unplug/models"

	"go.uber.org/zap"
)

// ReportArchiver accepts analytics reports for persistence
type ReportArchiver interface {
	Enqueue(report models.AnalyticsReport)
}

// RecommendationNotifier is told about recommendations that need intensive intervention
type RecommendationNotifier interface {
	NotifyRecommendation(rec *models.BehavioralRecommendation) error
}

var trendLevels = []string{
	string(models.TrendNormal),
	string(models.TrendAlert),
	string(models.TrendWarning),
	string(models.TrendCritical),
}

// CloudService is the aggregation tier: trends from reports, recommendations from insights
type CloudService struct {
	config     *config.Config
	bus        Bus
	aggregator *TrendAggregator
	logger     *zap.Logger
	status     *statusReporter
	archiver   ReportArchiver
	notifier   RecommendationNotifier

	mu               sync.Mutex
	reportsSinceTick int
}

func NewCloudService(cfg *config.Config, bus Bus, aggregator *TrendAggregator, logger *zap.Logger) *CloudService {
	return &CloudService{
		config:     cfg,
		bus:        bus,
		aggregator: aggregator,
		logger:     logger,
		status:     newStatusReporter(cfg, bus, "cloud", ComponentCloudLayer, logger),
	}
}

// SetArchiver enables persistence of every received report
func (c *CloudService) SetArchiver(a ReportArchiver) {
	c.archiver = a
}

// SetNotifier enables alerts for intensive recommendations
func (c *CloudService) SetNotifier(n RecommendationNotifier) {
	c.notifier = n
}

func (c *CloudService) Subscribe() error {
	if err := c.bus.Subscribe(c.config.TopicProcessed, c.status.guard(c.handleReport)); err != nil {
		return fmt.Errorf("failed to subscribe to processed reports: %w", err)
	}
	if err := c.bus.Subscribe(c.config.TopicInsights, c.status.guard(c.handleInsights)); err != nil {
		return fmt.Errorf("failed to subscribe to insights: %w", err)
	}
	return nil
}

// Start subscribes and runs the periodic trend tick until ctx is cancelled
func (c *CloudService) Start(ctx context.Context) error {
	if err := c.Subscribe(); err != nil {
		return err
	}

	ticker := time.NewTicker(c.config.AnalyticsInterval)
	defer ticker.Stop()

	c.logger.Info("Cloud layer started", zap.Duration("analytics_interval", c.config.AnalyticsInterval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Cloud layer stopped")
			return nil
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick republishes the current trend when no report arrived since the previous tick
func (c *CloudService) tick() {
	c.mu.Lock()
	idle := c.reportsSinceTick == 0
	c.reportsSinceTick = 0
	c.mu.Unlock()

	if !idle {
		return
	}
	if snapshot, ok := c.aggregator.CurrentTrend(); ok {
		c.publishTrend(snapshot)
	}
}

func (c *CloudService) handleReport(topic string, payload []byte) {
	start := time.Now()

	var report models.AnalyticsReport
	if err := json.Unmarshal(payload, &report); err != nil {
		c.logger.Warn("Failed to decode analytics report", zap.String("topic", topic), zap.Error(err))
		c.status.Failure(decodeFailureKind(payload), "", err)
		return
	}

	c.mu.Lock()
	c.reportsSinceTick++
	c.mu.Unlock()

	c.publishTrend(c.aggregator.AddReport(report))
	if c.archiver != nil {
		c.archiver.Enqueue(report)
	}

	c.status.Healthy(report.EntityID, time.Since(start))
}

func (c *CloudService) publishTrend(snapshot *models.TrendSnapshot) {
	metrics.SetActive(metrics.TrendLevel, string(snapshot.Level), trendLevels...)
	if err := publishJSON(c.bus, c.config.TopicTrends, snapshot); err != nil {
		c.logger.Debug("Failed to publish trend", zap.Error(err))
	}
	if snapshot.Level != models.TrendNormal {
		c.logger.Info("Trend update",
			zap.String("level", string(snapshot.Level)),
			zap.Float64("avg_usage_intensity", snapshot.AvgUsageIntensity),
			zap.Float64("avg_context_score", snapshot.AvgContextScore))
	}
}

func (c *CloudService) handleInsights(topic string, payload []byte) {
	start := time.Now()

	var batch models.InsightBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		c.logger.Warn("Failed to decode insight batch", zap.String("topic", topic), zap.Error(err))
		c.status.Failure(decodeFailureKind(payload), "", err)
		return
	}
	if len(batch.Insights) == 0 {
		return
	}

	rec := c.aggregator.Recommend(batch.EntityID, batch.Insights)
	summary := c.aggregator.Summarize(rec)

	if err := publishJSON(c.bus, c.config.TopicRecommendations, rec); err != nil {
		c.logger.Debug("Failed to publish recommendation", zap.Error(err))
	}
	if err := publishJSON(c.bus, c.config.TopicRecommendationSummary, summary); err != nil {
		c.logger.Debug("Failed to publish recommendation summary", zap.Error(err))
	}

	c.logger.Info("Behavioral recommendation generated",
		zap.String("entity_id", rec.EntityID),
		zap.Int("total_issues", rec.TotalIssues),
		zap.String("intervention_level", string(rec.InterventionLevel)),
		zap.Float64("urgency_score", rec.UrgencyScore),
		zap.String("top_pattern", summary.TopPattern))

	if rec.InterventionLevel == models.InterventionIntensive && c.notifier != nil {
		if err := c.notifier.NotifyRecommendation(rec); err != nil {
			c.logger.Error("Failed to send recommendation alert",
				zap.String("entity_id", rec.EntityID),
				zap.Error(err))
		}
	}

	c.status.Healthy(batch.EntityID, time.Since(start))
}
