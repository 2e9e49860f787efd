package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"unplug/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRecommendationNotifier struct {
	mu   sync.Mutex
	recs []*models.BehavioralRecommendation
}

func (f *fakeRecommendationNotifier) NotifyRecommendation(rec *models.BehavioralRecommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRecommendationNotifier) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

type fakeArchiver struct {
	mu      sync.Mutex
	reports []models.AnalyticsReport
}

func (f *fakeArchiver) Enqueue(r models.AnalyticsReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
}

func newTestCloud(t *testing.T) (*CloudService, *MemoryBus, *collector) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	bus := NewMemoryBus(cfg.BusBufferSize, logger)
	trends := &collector{}
	require.NoError(t, bus.Subscribe(cfg.TopicTrends, trends.handle))
	require.NoError(t, bus.Connect(context.Background()))
	t.Cleanup(func() { _ = bus.Disconnect() })

	cloud := NewCloudService(cfg, bus, newTestAggregator(t), logger)
	return cloud, bus, trends
}

func TestCloudTickRepublishesOnlyWhenIdle(t *testing.T) {
	cloud, _, trends := newTestCloud(t)

	cloud.tick()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, trends.Topics(), "no trend before any report")

	payload, err := json.Marshal(report(0.8, 0.2))
	require.NoError(t, err)
	cloud.handleReport("iot/edge/processed", payload)
	require.Eventually(t, func() bool { return len(trends.Topics()) == 1 }, time.Second, 5*time.Millisecond)

	// a report arrived since the last tick
	cloud.tick()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, trends.Topics(), 1)

	cloud.tick()
	require.Eventually(t, func() bool { return len(trends.Topics()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCloudArchivesReports(t *testing.T) {
	cloud, _, _ := newTestCloud(t)
	archiver := &fakeArchiver{}
	cloud.SetArchiver(archiver)

	payload, err := json.Marshal(report(0.3, 0.7))
	require.NoError(t, err)
	cloud.handleReport("iot/edge/processed", payload)

	require.Len(t, archiver.reports, 1)
	assert.Equal(t, "user_001", archiver.reports[0].EntityID)
}

func TestCloudNotifiesIntensiveRecommendations(t *testing.T) {
	cloud, _, _ := newTestCloud(t)
	notifier := &fakeRecommendationNotifier{}
	cloud.SetNotifier(notifier)

	batch := func(severities ...models.Severity) []byte {
		b := models.InsightBatch{EntityID: "user_001", Timestamp: day(23, 30)}
		for _, s := range severities {
			b.Insights = append(b.Insights, models.Insight{PatternType: models.PatternLateNightUsage, Severity: s})
		}
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		return payload
	}

	cloud.handleInsights("iot/edge/insights", batch(models.SeverityHigh))
	assert.Zero(t, notifier.Count())

	high := make([]models.Severity, intensiveHighCount)
	for i := range high {
		high[i] = models.SeverityHigh
	}
	cloud.handleInsights("iot/edge/insights", batch(high...))
	assert.Equal(t, 1, notifier.Count())
}
