package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"unplug/config"
	"unplug/metrics"
	"unplug/models"
	"unplug/window"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	eventMessages = "messages"
	eventErrors   = "errors"
	eventLosses   = "losses"
	eventRejects  = "rejects"

	criticalUptime     = 0.8
	criticalStability  = 0.5
	poorHealthScore    = 0.7
	topErrorTypesLimit = 5
	componentUnknown   = "unknown"
)

var systemStatuses = []string{
	string(models.SystemHealthy),
	string(models.SystemDegraded),
	string(models.SystemCritical),
}

// HealthThresholds holds the limits used to score and classify a health evaluation
type HealthThresholds struct {
	CriticalErrorRate      float64
	DegradedErrorRate      float64
	MaxResponseTime        float64
	MinUptime              float64
	MaxDataLoss            float64
	MinConnectionStability float64
}

func HealthThresholdsFromConfig(cfg *config.Config) HealthThresholds {
	return HealthThresholds{
		CriticalErrorRate:      cfg.CriticalErrorRate,
		DegradedErrorRate:      cfg.DegradedErrorRate,
		MaxResponseTime:        cfg.MaxResponseTime,
		MinUptime:              cfg.MinUptime,
		MaxDataLoss:            cfg.MaxDataLoss,
		MinConnectionStability: cfg.MinConnectionStability,
	}
}

// Score is the weighted health composite in [0,1]. Each term is floored at zero.
func (h HealthThresholds) Score(m models.SystemHealthMetrics, tracked int) float64 {
	failureTerm := 1.0
	if tracked > 0 {
		failureTerm = 1 - float64(m.ComponentFailures)/float64(tracked)
	}

	score := m.Uptime*0.25 +
		math.Max(0, failureTerm)*0.20 +
		math.Max(0, 1-ratioOf(m.ErrorRate, h.CriticalErrorRate))*0.20 +
		math.Max(0, 1-ratioOf(m.AvgResponseTime, h.MaxResponseTime))*0.15 +
		math.Max(0, 1-ratioOf(m.DataLossRate, h.MaxDataLoss))*0.10 +
		math.Max(0, m.ConnectionStability)*0.10

	return clamp01(score)
}

// Status classifies an evaluation. Every critical trigger is a relaxed degraded trigger.
func (h HealthThresholds) Status(m models.SystemHealthMetrics) models.SystemStatus {
	if m.ErrorRate > 2*h.CriticalErrorRate ||
		m.AvgResponseTime > 2*h.MaxResponseTime ||
		m.Uptime < criticalUptime ||
		m.DataLossRate > 2*h.MaxDataLoss ||
		m.ConnectionStability < criticalStability {
		return models.SystemCritical
	}

	if m.ErrorRate > h.DegradedErrorRate ||
		m.AvgResponseTime > h.MaxResponseTime ||
		m.Uptime < h.MinUptime ||
		m.DataLossRate > h.MaxDataLoss ||
		m.ConnectionStability < h.MinConnectionStability {
		return models.SystemDegraded
	}

	return models.SystemHealthy
}

// Recommendations returns one entry per violated category, or a single all-clear
func (h HealthThresholds) Recommendations(m models.SystemHealthMetrics) []string {
	var recs []string

	if m.ErrorRate > h.DegradedErrorRate {
		recs = append(recs, "🔧 High error rate detected - review system logs and error handling")
	}
	if m.AvgResponseTime > h.MaxResponseTime {
		recs = append(recs, "⏱️ High response times detected - investigate component performance")
	}
	if m.DataLossRate > h.MaxDataLoss {
		recs = append(recs, "📡 Data loss detected - check network connectivity and message delivery")
	}
	if m.ConnectionStability < h.MinConnectionStability {
		recs = append(recs, "🔌 Connection instability detected - verify the broker and network")
	}
	if m.ComponentFailures > 0 {
		recs = append(recs, fmt.Sprintf("🚨 %d component(s) failed - restart failed components", m.ComponentFailures))
	}
	if m.OverallHealthScore < poorHealthScore {
		recs = append(recs, "⚠️ Overall system health is poor - comprehensive system review recommended")
	}

	if len(recs) == 0 {
		recs = append(recs, "✅ System health is optimal - no immediate action required")
	}
	return recs
}

func ratioOf(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return value / limit
}

// HealthNotifier is told when the system enters or leaves critical status
type HealthNotifier interface {
	NotifyHealthChange(previous models.SystemStatus, current models.SystemHealthMetrics) error
}

type healthEvent struct {
	Timestamp time.Time
	Component string
	Detail    string
}

// SystemHealthMonitor aggregates operational events from every tier into a
// periodic health evaluation.
type SystemHealthMonitor struct {
	config     *config.Config
	bus        Bus
	logger     *zap.Logger
	thresholds HealthThresholds
	notifier   HealthNotifier
	monitorID  string
	now        func() time.Time
	start      time.Time

	events *window.Store[healthEvent]

	mu            sync.RWMutex
	components    map[string]*models.ComponentHealthStatus
	responseTimes map[string]*window.Ring[float64]
	history       *window.Ring[models.SystemHealthMetrics]
	totalMessages int
	totalErrors   int
	lastStatus    models.SystemStatus
}

// NewSystemHealthMonitor creates a monitor using the wall clock
func NewSystemHealthMonitor(cfg *config.Config, bus Bus, logger *zap.Logger) *SystemHealthMonitor {
	return NewSystemHealthMonitorWithClock(cfg, bus, logger, time.Now)
}

// NewSystemHealthMonitorWithClock creates a monitor with an injected clock
func NewSystemHealthMonitorWithClock(cfg *config.Config, bus Bus, logger *zap.Logger, now func() time.Time) *SystemHealthMonitor {
	return &SystemHealthMonitor{
		config:        cfg,
		bus:           bus,
		logger:        logger,
		thresholds:    HealthThresholdsFromConfig(cfg),
		monitorID:     fmt.Sprintf("%s-health-%s", cfg.ServiceName, uuid.NewString()[:8]),
		now:           now,
		start:         now(),
		events:        window.NewStore(cfg.EventLogSize, func(e healthEvent) time.Time { return e.Timestamp }),
		components:    make(map[string]*models.ComponentHealthStatus),
		responseTimes: make(map[string]*window.Ring[float64]),
		history:       window.NewRing[models.SystemHealthMetrics](cfg.HealthHistorySize),
	}
}

// SetNotifier enables alerts on critical status transitions
func (m *SystemHealthMonitor) SetNotifier(n HealthNotifier) {
	m.notifier = n
}

func (m *SystemHealthMonitor) statusPattern() string {
	return m.config.ComponentTopic("+", "status")
}

// Subscribe registers the monitor on every data and status topic of the pipeline
func (m *SystemHealthMonitor) Subscribe() error {
	topics := []string{
		m.config.TopicTelemetry,
		m.config.TopicControl,
		m.config.TopicProcessed,
		m.config.TopicInsights,
		m.config.TopicTrends,
		m.config.TopicRecommendations,
		m.config.TopicRecommendationSummary,
		m.statusPattern(),
	}
	if !TopicMatches(m.statusPattern(), m.config.TopicSmartHomeStatus) {
		topics = append(topics, m.config.TopicSmartHomeStatus)
	}

	handler := guardHandler(m.logger, func(_ string, err error) {
		m.RecordError(ComponentHealthMonitor, err.Error())
	}, m.HandleMessage)

	for _, topic := range topics {
		if err := m.bus.Subscribe(topic, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

// HandleMessage records one inbound message and any health information it carries
func (m *SystemHealthMonitor) HandleMessage(topic string, payload []byte) {
	component, ok := componentFromTopic(m.config.TopicPrefix, topic)
	if !ok {
		component = componentUnknown
	}
	m.RecordMessage(component)

	if !json.Valid(payload) {
		m.RecordDataLoss(component, "JSON decode error")
		return
	}

	if topic == m.config.TopicControl {
		return
	}
	if !m.isStatusTopic(topic) {
		m.touch(component)
		return
	}

	var report models.ComponentReport
	if err := json.Unmarshal(payload, &report); err != nil {
		m.RecordDataLoss(component, "status decode error")
		return
	}
	if report.Component == "" {
		report.Component = component
	}
	m.RecordComponentReport(report)
}

func (m *SystemHealthMonitor) isStatusTopic(topic string) bool {
	return topic == m.config.TopicSmartHomeStatus || topicKind(topic) == "status"
}

// RecordMessage counts one inbound message
func (m *SystemHealthMonitor) RecordMessage(component string) {
	m.events.Push(eventMessages, healthEvent{Timestamp: m.now(), Component: component})
	metrics.MessagesReceived.WithLabelValues(component).Inc()

	m.mu.Lock()
	m.totalMessages++
	m.mu.Unlock()
}

// RecordDataLoss counts an undecodable or lost message
func (m *SystemHealthMonitor) RecordDataLoss(component, reason string) {
	m.events.Push(eventLosses, healthEvent{Timestamp: m.now(), Component: component, Detail: reason})
	metrics.DataLossEvents.WithLabelValues(component).Inc()

	m.logger.Debug("Data loss recorded",
		zap.String("component", component),
		zap.String("reason", reason))
}

// RecordError counts a processing error attributed to component
func (m *SystemHealthMonitor) RecordError(component, detail string) {
	m.events.Push(eventErrors, healthEvent{Timestamp: m.now(), Component: component, Detail: detail})

	m.mu.Lock()
	m.totalErrors++
	if c, ok := m.components[component]; ok {
		c.ErrorCount++
		c.LastError = detail
	}
	m.mu.Unlock()
}

// recordReject keeps a consumer's decode failure for error analysis without
// counting it again
func (m *SystemHealthMonitor) recordReject(component, detail string) {
	m.events.Push(eventRejects, healthEvent{Timestamp: m.now(), Component: component, Detail: detail})

	m.mu.Lock()
	if c, ok := m.components[component]; ok {
		c.LastError = detail
	}
	m.mu.Unlock()
}

// RecordResponseTime adds a response time sample for component
func (m *SystemHealthMonitor) RecordResponseTime(component string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordResponseTimeLocked(component, seconds)
}

func (m *SystemHealthMonitor) recordResponseTimeLocked(component string, seconds float64) {
	ring, ok := m.responseTimes[component]
	if !ok {
		ring = window.NewRing[float64](m.config.ResponseTimeBuffer)
		m.responseTimes[component] = ring
	}
	ring.Push(seconds)

	if c, ok := m.components[component]; ok {
		c.AvgResponseTime = mean(ring.Items())
	}
}

// RecordComponentReport applies a component's self-reported status
func (m *SystemHealthMonitor) RecordComponentReport(report models.ComponentReport) {
	ts := m.now()

	m.mu.Lock()
	c := m.componentLocked(report.Component, ts)
	if report.Status != "" {
		c.Status = report.Status
	}
	c.LastSeen = ts
	c.MessageCount++
	if report.ResponseTime != nil && report.ErrorKind == "" {
		m.recordResponseTimeLocked(report.Component, *report.ResponseTime)
	}
	m.mu.Unlock()

	switch {
	case report.Error == "":
	case report.ErrorKind == models.ErrorKindDecode:
		m.RecordDataLoss(report.Component, report.Error)
	case report.ErrorKind == models.ErrorKindMalformed:
		// the raw message was already counted as lost
		m.recordReject(report.Component, report.Error)
	default:
		m.RecordError(report.Component, report.Error)
	}
}

// touch marks a component as seen because one of its data messages arrived
func (m *SystemHealthMonitor) touch(component string) {
	if component == componentUnknown {
		return
	}

	ts := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.componentLocked(component, ts)
	c.LastSeen = ts
	c.MessageCount++
}

func (m *SystemHealthMonitor) componentLocked(component string, ts time.Time) *models.ComponentHealthStatus {
	c, ok := m.components[component]
	if !ok {
		c = &models.ComponentHealthStatus{
			Component: component,
			Status:    models.ComponentHealthy,
			LastSeen:  ts,
		}
		m.components[component] = c
		m.logger.Info("New component registered for health monitoring", zap.String("component", component))
	}
	return c
}

func (m *SystemHealthMonitor) trackedCount() int {
	return len(m.config.ExpectedComponents)
}

// Evaluate computes a health snapshot, appends it to the history and returns it
func (m *SystemHealthMonitor) Evaluate() models.SystemHealthMetrics {
	ts := m.now()
	cutoff := ts.Add(-time.Hour)
	tracked := m.trackedCount()

	recentErrors := m.events.CountSince(eventErrors, cutoff)
	recentLosses := m.events.CountSince(eventLosses, cutoff)
	recentMessages := m.events.CountSince(eventMessages, cutoff)

	m.mu.Lock()

	snapshot := models.SystemHealthMetrics{
		Timestamp:         ts,
		Uptime:            m.uptimeLocked(),
		ComponentFailures: m.failuresLocked(ts),
		ErrorRate:         float64(recentErrors) / 60,
		AvgResponseTime:   m.avgResponseTimeLocked(),
		ComponentsTracked: tracked,
	}

	if m.totalMessages > 0 {
		snapshot.DataLossRate = clamp01(float64(recentLosses) / float64(m.totalMessages))
		expected := float64(tracked * m.config.ExpectedMessagesPerHour)
		snapshot.ConnectionStability = 1
		if expected > 0 {
			snapshot.ConnectionStability = math.Min(1, float64(recentMessages)/expected)
		}
	} else {
		snapshot.ConnectionStability = 1
	}

	snapshot.SystemStatus = m.thresholds.Status(snapshot)
	snapshot.OverallHealthScore = m.thresholds.Score(snapshot, tracked)

	m.history.Push(snapshot)
	previous := m.lastStatus
	m.lastStatus = snapshot.SystemStatus
	m.mu.Unlock()

	m.updateGauges(snapshot)

	if previous != snapshot.SystemStatus {
		m.logger.Info(snapshot.SystemStatus.GetStatusEmoji()+" System status changed",
			zap.String("previous", string(previous)),
			zap.String("current", string(snapshot.SystemStatus)),
			zap.Float64("health_score", snapshot.OverallHealthScore))
	}
	if m.notifier != nil && previous != "" && previous != snapshot.SystemStatus &&
		(previous == models.SystemCritical || snapshot.SystemStatus == models.SystemCritical) {
		if err := m.notifier.NotifyHealthChange(previous, snapshot); err != nil {
			m.logger.Error("Failed to send health alert", zap.Error(err))
		}
	}

	return snapshot
}

// uptimeLocked is the share of monitored time covered by healthy or degraded
// evaluations, measured up to the latest evaluation. It is 1 before any evaluation.
func (m *SystemHealthMonitor) uptimeLocked() float64 {
	latest, ok := m.history.Newest()
	if !ok {
		return 1
	}

	elapsed := latest.Timestamp.Sub(m.start).Seconds()
	if elapsed <= 0 {
		return 1
	}

	good := 0
	for _, h := range m.history.Items() {
		if h.SystemStatus == models.SystemHealthy || h.SystemStatus == models.SystemDegraded {
			good++
		}
	}
	return math.Min(1, float64(good)*m.config.HealthEvalInterval.Seconds()/elapsed)
}

func (m *SystemHealthMonitor) failuresLocked(ts time.Time) int {
	failed := 0
	for _, c := range m.components {
		if c.Status == models.ComponentFailed || ts.Sub(c.LastSeen) > m.config.StalenessCeiling {
			failed++
		}
	}
	return failed
}

func (m *SystemHealthMonitor) avgResponseTimeLocked() float64 {
	var all []float64
	for _, ring := range m.responseTimes {
		all = append(all, ring.Items()...)
	}
	return mean(all)
}

func (m *SystemHealthMonitor) updateGauges(s models.SystemHealthMetrics) {
	metrics.HealthScore.Set(s.OverallHealthScore)
	metrics.HealthUptime.Set(s.Uptime)
	metrics.HealthErrorRate.Set(s.ErrorRate)
	metrics.HealthResponseTime.Set(s.AvgResponseTime)
	metrics.HealthDataLossRate.Set(s.DataLossRate)
	metrics.HealthConnectionStability.Set(s.ConnectionStability)
	metrics.HealthComponentFailures.Set(float64(s.ComponentFailures))
	metrics.SetActive(metrics.SystemStatus, string(s.SystemStatus), systemStatuses...)
}

// Latest returns the most recent evaluation
func (m *SystemHealthMonitor) Latest() (models.SystemHealthMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Newest()
}

// History returns every retained evaluation, oldest first
func (m *SystemHealthMonitor) History() []models.SystemHealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Items()
}

// ComponentSummary counts tracked components by status
func (m *SystemHealthMonitor) ComponentSummary() models.ComponentSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := models.ComponentSummary{
		Total:      m.trackedCount(),
		Components: make(map[string]models.ComponentHealthStatus, len(m.components)),
	}
	for name, c := range m.components {
		summary.Components[name] = *c
		switch c.Status {
		case models.ComponentHealthy:
			summary.Healthy++
		case models.ComponentDegraded:
			summary.Degraded++
		case models.ComponentFailed:
			summary.Failed++
		default:
			summary.Unknown++
		}
	}
	return summary
}

// ErrorAnalysis summarizes the retained error events
func (m *SystemHealthMonitor) ErrorAnalysis() models.ErrorAnalysis {
	errs := m.events.All(eventErrors)
	cutoff := m.now().Add(-time.Hour)

	m.mu.RLock()
	total := m.totalErrors
	m.mu.RUnlock()

	analysis := models.ErrorAnalysis{
		TotalErrors:       total,
		DataLossEvents:    m.events.Len(eventLosses),
		ErrorsByComponent: make(map[string]int),
	}

	types := make(map[string]int)
	for _, e := range errs {
		if !e.Timestamp.Before(cutoff) {
			analysis.LastHourErrors++
		}
		analysis.ErrorsByComponent[e.Component]++
		errType, _, _ := strings.Cut(e.Detail, ":")
		types[errType]++
	}
	for _, e := range m.events.All(eventRejects) {
		errType, _, _ := strings.Cut(e.Detail, ":")
		types[errType]++
	}

	for errType, count := range types {
		analysis.TopErrorTypes = append(analysis.TopErrorTypes, models.ErrorTypeCount{Type: errType, Count: count})
	}
	sort.Slice(analysis.TopErrorTypes, func(i, j int) bool {
		a, b := analysis.TopErrorTypes[i], analysis.TopErrorTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(analysis.TopErrorTypes) > topErrorTypesLimit {
		analysis.TopErrorTypes = analysis.TopErrorTypes[:topErrorTypesLimit]
	}
	return analysis
}

// Report builds the document handed to the report sink
func (m *SystemHealthMonitor) Report() *models.HealthReport {
	ts := m.now()
	report := &models.HealthReport{
		ID:                      uuid.NewString(),
		ReportTimestamp:         ts,
		MonitoringDurationHours: ts.Sub(m.start).Hours(),
		ComponentSummary:        m.ComponentSummary(),
		ErrorAnalysis:           m.ErrorAnalysis(),
	}

	latest, ok := m.Latest()
	if ok {
		report.Latest = &latest
		report.Recommendations = m.thresholds.Recommendations(latest)
	} else {
		report.Recommendations = []string{"No health evaluations recorded yet"}
	}
	report.HistorySize = len(m.History())
	return report
}

// Heartbeat describes the monitor itself
func (m *SystemHealthMonitor) Heartbeat() models.Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := m.lastStatus
	if status == "" {
		status = models.SystemHealthy
	}
	return models.Heartbeat{
		MonitorID:         m.monitorID,
		Timestamp:         m.now(),
		Status:            status,
		ComponentsTracked: m.trackedCount(),
		HistorySize:       m.history.Len(),
	}
}

// Run evaluates and publishes health and heartbeats on their own tickers until ctx is cancelled
func (m *SystemHealthMonitor) Run(ctx context.Context) error {
	evalTicker := time.NewTicker(m.config.HealthEvalInterval)
	defer evalTicker.Stop()
	heartbeatTicker := time.NewTicker(m.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	m.logger.Info("System health monitor started",
		zap.String("monitor_id", m.monitorID),
		zap.Duration("eval_interval", m.config.HealthEvalInterval),
		zap.Duration("heartbeat_interval", m.config.HeartbeatInterval),
		zap.Strings("expected_components", m.config.ExpectedComponents))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("System health monitor stopped")
			return nil

		case <-evalTicker.C:
			snapshot := m.Evaluate()
			m.publish(m.config.TopicSystemHealth, snapshot)

		case <-heartbeatTicker.C:
			m.publish(m.config.TopicHeartbeat, m.Heartbeat())
		}
	}
}

func (m *SystemHealthMonitor) publish(topic string, v any) {
	err := publishJSON(m.bus, topic, v)
	if err == nil || errors.Is(err, ErrNotConnected) {
		return
	}
	m.logger.Warn("Failed to publish health message", zap.String("topic", topic), zap.Error(err))
	m.RecordError(ComponentHealthMonitor, "publish error: "+err.Error())
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
