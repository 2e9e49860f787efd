package services

import (
	"testing"
	"time"

	"unplug/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordedTransition struct {
	previous models.SystemStatus
	current  models.SystemStatus
}

type fakeHealthNotifier struct {
	transitions []recordedTransition
}

func (f *fakeHealthNotifier) NotifyHealthChange(previous models.SystemStatus, current models.SystemHealthMetrics) error {
	f.transitions = append(f.transitions, recordedTransition{previous, current.SystemStatus})
	return nil
}

func newTestMonitor(t *testing.T) (*SystemHealthMonitor, *fakeClock) {
	cfg := testConfig(t)
	cfg.ExpectedComponents = []string{ComponentEdgeLayer}
	cfg.ExpectedMessagesPerHour = 1

	logger := zaptest.NewLogger(t)
	clock := &fakeClock{t: day(8, 0)}
	monitor := NewSystemHealthMonitorWithClock(cfg, NewMemoryBus(cfg.BusBufferSize, logger), logger, clock.Now)
	return monitor, clock
}

func perfectMetrics() models.SystemHealthMetrics {
	return models.SystemHealthMetrics{
		Uptime:              1,
		ConnectionStability: 1,
	}
}

func TestHealthScorePerfect(t *testing.T) {
	th := HealthThresholdsFromConfig(testConfig(t))
	m := perfectMetrics()

	assert.InDelta(t, 1.0, th.Score(m, 4), 1e-9)
	assert.Equal(t, models.SystemHealthy, th.Status(m))
	assert.Equal(t, []string{"✅ System health is optimal - no immediate action required"}, th.Recommendations(m))
}

func TestHealthScoreTermsFloorAtZero(t *testing.T) {
	th := HealthThresholdsFromConfig(testConfig(t))
	m := models.SystemHealthMetrics{
		ComponentFailures: 10,
		ErrorRate:         5,
		AvgResponseTime:   100,
		DataLossRate:      1,
	}
	assert.Zero(t, th.Score(m, 4))
}

func TestHealthStatusClassification(t *testing.T) {
	th := HealthThresholdsFromConfig(testConfig(t))

	tests := []struct {
		name   string
		mutate func(m *models.SystemHealthMetrics)
		want   models.SystemStatus
	}{
		{"error rate critical", func(m *models.SystemHealthMetrics) { m.ErrorRate = 0.25 }, models.SystemCritical},
		{"error rate degraded", func(m *models.SystemHealthMetrics) { m.ErrorRate = 0.06 }, models.SystemDegraded},
		{"slow responses", func(m *models.SystemHealthMetrics) { m.AvgResponseTime = 6 }, models.SystemDegraded},
		{"very slow responses", func(m *models.SystemHealthMetrics) { m.AvgResponseTime = 11 }, models.SystemCritical},
		{"low uptime", func(m *models.SystemHealthMetrics) { m.Uptime = 0.9 }, models.SystemDegraded},
		{"very low uptime", func(m *models.SystemHealthMetrics) { m.Uptime = 0.7 }, models.SystemCritical},
		{"data loss", func(m *models.SystemHealthMetrics) { m.DataLossRate = 0.06 }, models.SystemDegraded},
		{"heavy data loss", func(m *models.SystemHealthMetrics) { m.DataLossRate = 0.2 }, models.SystemCritical},
		{"unstable", func(m *models.SystemHealthMetrics) { m.ConnectionStability = 0.6 }, models.SystemDegraded},
		{"disconnected", func(m *models.SystemHealthMetrics) { m.ConnectionStability = 0.4 }, models.SystemCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := perfectMetrics()
			tt.mutate(&m)
			assert.Equal(t, tt.want, th.Status(m))
		})
	}
}

func TestHealthRecommendations(t *testing.T) {
	th := HealthThresholdsFromConfig(testConfig(t))
	m := models.SystemHealthMetrics{
		Uptime:              1,
		ErrorRate:           0.2,
		ConnectionStability: 0.5,
		ComponentFailures:   2,
		OverallHealthScore:  0.5,
	}

	recs := th.Recommendations(m)
	require.Len(t, recs, 4)
	assert.Contains(t, recs[0], "High error rate")
	assert.Contains(t, recs[1], "Connection instability")
	assert.Equal(t, "🚨 2 component(s) failed - restart failed components", recs[2])
	assert.Contains(t, recs[3], "Overall system health is poor")
}

func TestMonitorEvaluateEmpty(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	snapshot := monitor.Evaluate()
	assert.Equal(t, 1.0, snapshot.Uptime)
	assert.Equal(t, 1.0, snapshot.ConnectionStability)
	assert.Zero(t, snapshot.DataLossRate)
	assert.Equal(t, models.SystemHealthy, snapshot.SystemStatus)
	assert.Equal(t, 1, snapshot.ComponentsTracked)
}

func TestMonitorUptimeStaysFullWhileHealthy(t *testing.T) {
	monitor, clock := newTestMonitor(t)
	monitor.HandleMessage("iot/edge/processed", []byte(`{"entity_id":"user_001"}`))

	for i := 0; i < 3; i++ {
		clock.Advance(monitor.config.HealthEvalInterval)
		snapshot := monitor.Evaluate()
		assert.InDelta(t, 1.0, snapshot.Uptime, 1e-9)
		assert.Equal(t, models.SystemHealthy, snapshot.SystemStatus)
	}
	assert.Len(t, monitor.History(), 3)
}

func TestMonitorStaleComponentCountsAsFailed(t *testing.T) {
	monitor, clock := newTestMonitor(t)

	rt := 0.2
	monitor.RecordComponentReport(models.ComponentReport{
		Component:    ComponentEdgeLayer,
		Status:       models.ComponentHealthy,
		ResponseTime: &rt,
	})

	snapshot := monitor.Evaluate()
	assert.Zero(t, snapshot.ComponentFailures)
	assert.InDelta(t, 0.2, snapshot.AvgResponseTime, 1e-9)

	clock.Advance(monitor.config.StalenessCeiling + time.Second)
	snapshot = monitor.Evaluate()
	assert.Equal(t, 1, snapshot.ComponentFailures)
}

func TestMonitorFailedStatusCountsAsFailed(t *testing.T) {
	monitor, _ := newTestMonitor(t)
	monitor.HandleMessage("iot/cloud/status", []byte(`{"component":"cloud_layer","status":"failed"}`))

	snapshot := monitor.Evaluate()
	assert.Equal(t, 1, snapshot.ComponentFailures)
	assert.Equal(t, models.ComponentFailed, monitor.ComponentSummary().Components[ComponentCloudLayer].Status)
}

func TestMonitorUndecodablePayloadIsDataLoss(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	monitor.HandleMessage("iot/digitaltwin/behavior", []byte(`{"entity_id":`))
	monitor.HandleMessage("iot/digitaltwin/behavior", []byte(`{"entity_id":"user_001"}`))

	snapshot := monitor.Evaluate()
	assert.InDelta(t, 0.5, snapshot.DataLossRate, 1e-9)
	assert.Equal(t, models.SystemCritical, snapshot.SystemStatus)
	assert.Equal(t, 1, monitor.ErrorAnalysis().DataLossEvents)
	assert.Zero(t, monitor.ErrorAnalysis().TotalErrors)
}

func TestMonitorReportedDecodeErrorIsDataLoss(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	monitor.HandleMessage("iot/edge/status",
		[]byte(`{"component":"edge_layer","status":"degraded","error":"decode error: unexpected EOF","error_kind":"decode"}`))
	monitor.HandleMessage("iot/edge/status",
		[]byte(`{"component":"edge_layer","status":"degraded","error":"processing error: boom","error_kind":"processing"}`))

	analysis := monitor.ErrorAnalysis()
	assert.Equal(t, 1, analysis.DataLossEvents)
	assert.Equal(t, 1, analysis.TotalErrors)
	assert.Equal(t, 1, analysis.ErrorsByComponent[ComponentEdgeLayer])

	status := monitor.ComponentSummary().Components[ComponentEdgeLayer]
	assert.Equal(t, models.ComponentDegraded, status.Status)
	assert.Equal(t, "processing error: boom", status.LastError)
}

func TestMonitorMalformedPayloadCountedOnce(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	monitor.HandleMessage("iot/digitaltwin/behavior", []byte(`{"entity_id":"user_001"`))
	monitor.HandleMessage("iot/edge/status",
		[]byte(`{"component":"edge_layer","status":"degraded","error":"malformed error: unexpected end of JSON input","error_kind":"malformed"}`))

	analysis := monitor.ErrorAnalysis()
	assert.Equal(t, 1, analysis.DataLossEvents)
	assert.Zero(t, analysis.TotalErrors)
	assert.Contains(t, analysis.TopErrorTypes, models.ErrorTypeCount{Type: "malformed error", Count: 1})

	snapshot := monitor.Evaluate()
	assert.InDelta(t, 0.5, snapshot.DataLossRate, 1e-9)
	assert.Zero(t, snapshot.ErrorRate)
}

func TestMonitorCountsControlWithoutTouchingTwin(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	monitor.HandleMessage("iot/digitaltwin/control", []byte(`{"type":"reset_patterns","entity_id":"user_001"}`))

	assert.NotContains(t, monitor.ComponentSummary().Components, ComponentDigitalTwin)
	assert.Zero(t, monitor.ErrorAnalysis().DataLossEvents)
}

func TestMonitorErrorRate(t *testing.T) {
	monitor, clock := newTestMonitor(t)

	for i := 0; i < 15; i++ {
		monitor.RecordError(ComponentEdgeLayer, "processing error: boom")
	}
	snapshot := monitor.Evaluate()
	assert.InDelta(t, 0.25, snapshot.ErrorRate, 1e-9)
	assert.Equal(t, models.SystemCritical, snapshot.SystemStatus)

	clock.Advance(time.Hour + time.Minute)
	snapshot = monitor.Evaluate()
	assert.Zero(t, snapshot.ErrorRate)
}

func TestMonitorNotifiesCriticalTransitions(t *testing.T) {
	monitor, _ := newTestMonitor(t)
	notifier := &fakeHealthNotifier{}
	monitor.SetNotifier(notifier)

	monitor.Evaluate()
	for i := 0; i < 15; i++ {
		monitor.RecordError(ComponentEdgeLayer, "processing error: boom")
	}
	monitor.Evaluate()
	monitor.Evaluate()

	require.Len(t, notifier.transitions, 1)
	assert.Equal(t, models.SystemHealthy, notifier.transitions[0].previous)
	assert.Equal(t, models.SystemCritical, notifier.transitions[0].current)
}

func TestMonitorReport(t *testing.T) {
	monitor, clock := newTestMonitor(t)

	empty := monitor.Report()
	assert.Nil(t, empty.Latest)
	assert.NotEmpty(t, empty.Recommendations)

	for i := 0; i < 3; i++ {
		monitor.RecordError(ComponentEdgeLayer, "processing error: boom")
	}
	monitor.RecordError(ComponentCloudLayer, "publish error: not connected")
	clock.Advance(2 * time.Hour)
	monitor.Evaluate()

	report := monitor.Report()
	require.NotNil(t, report.Latest)
	assert.Equal(t, 1, report.HistorySize)
	assert.InDelta(t, 2.0, report.MonitoringDurationHours, 1e-9)
	assert.NotEmpty(t, report.ID)

	analysis := report.ErrorAnalysis
	assert.Equal(t, 4, analysis.TotalErrors)
	assert.Zero(t, analysis.LastHourErrors)
	require.Len(t, analysis.TopErrorTypes, 2)
	assert.Equal(t, models.ErrorTypeCount{Type: "processing error", Count: 3}, analysis.TopErrorTypes[0])
	assert.Equal(t, models.ErrorTypeCount{Type: "publish error", Count: 1}, analysis.TopErrorTypes[1])
}

func TestMonitorHeartbeat(t *testing.T) {
	monitor, _ := newTestMonitor(t)
	monitor.Evaluate()

	hb := monitor.Heartbeat()
	assert.Equal(t, monitor.monitorID, hb.MonitorID)
	assert.Equal(t, models.SystemHealthy, hb.Status)
	assert.Equal(t, 1, hb.ComponentsTracked)
	assert.Equal(t, 1, hb.HistorySize)
}
