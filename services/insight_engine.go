package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"unplug/config"
	"unplug/models"
	"unplug/window"

	"go.uber.org/zap"
)

// Fixed per-rule confidences
const (
	confidenceDailyOveruse          = 0.9
	confidenceLongSessions          = 0.8
	confidenceLateNight             = 0.85
	confidenceHighIntensity         = 0.75
	confidenceInappropriateContext  = 0.8
	confidenceWellnessImpact        = 0.85
	confidenceExcessiveSession      = 0.7
	confidenceExcessiveAppUsage     = 0.7
	confidenceExcessiveInteractions = 0.65
	confidenceHealthyUsage          = 0.6

	minLateNightScreenHours = 0.05
	healthyIntensityCeiling = 0.3
	healthyContextFloor     = 0.7
	healthyWellnessFloor    = 0.6
	topAppsInSummary        = 3
)

var (
	ErrUnknownCommand = errors.New("unknown control command")
	ErrInvalidCommand = errors.New("invalid control command")
)

// EntityThresholds are the two per-entity limits that only control commands may change
type EntityThresholds struct {
	DailyOveruseHours float64 `json:"daily_overuse_hours"`
	SessionHours      float64 `json:"session_hours"`
}

// entityState is the digital twin of one tracked entity. All fields are guarded by mu.
type entityState struct {
	mu         sync.Mutex
	history    *window.Ring[models.TelemetrySample]
	patterns   map[string]*models.UsagePatternStat
	daily      *window.DailyAccumulator
	thresholds EntityThresholds
}

// InsightEngine keeps one digital twin per entity and runs the detection rules against it
type InsightEngine struct {
	config *config.Config
	logger *zap.Logger

	mu       sync.RWMutex
	entities map[string]*entityState

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewInsightEngine(cfg *config.Config, logger *zap.Logger) *InsightEngine {
	return &InsightEngine{
		config:   cfg,
		logger:   logger,
		entities: make(map[string]*entityState),
		rng:      rand.New(rand.NewSource(cfg.RandomSeed)),
	}
}

func (e *InsightEngine) lookup(entityID string) (*entityState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state, ok := e.entities[entityID]
	return state, ok
}

func (e *InsightEngine) stateFor(entityID string) *entityState {
	if state, ok := e.lookup(entityID); ok {
		return state
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if state, ok := e.entities[entityID]; ok {
		return state
	}

	state := &entityState{
		history:  window.NewRing[models.TelemetrySample](e.config.HistorySize),
		patterns: make(map[string]*models.UsagePatternStat),
		daily:    window.NewDailyAccumulator(),
		thresholds: EntityThresholds{
			DailyOveruseHours: e.config.DailyOveruseHours,
			SessionHours:      e.config.SessionThresholdHours,
		},
	}
	e.entities[entityID] = state

	e.logger.Info("New entity registered for behavior tracking", zap.String("entity_id", entityID))
	return state
}

// Ingest records one sample into the entity's state and returns the insights it
// triggers, in rule order.
func (e *InsightEngine) Ingest(entityID string, sample *models.TelemetrySample, metrics models.DerivedMetrics) []*models.Insight {
	state := e.stateFor(entityID)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.history.Push(*sample)
	state.daily.Add(sample.Timestamp, sample.ScreenTime)
	for app, hours := range sample.AppUsage {
		stat, ok := state.patterns[app]
		if !ok {
			stat = &models.UsagePatternStat{}
			state.patterns[app] = stat
		}
		stat.Add(hours)
	}

	recent := state.history.Last(e.config.RecentWindow)

	var insights []*models.Insight
	add := func(i *models.Insight) {
		if i != nil {
			insights = append(insights, i)
		}
	}

	add(e.detectDailyOveruse(state, sample))
	add(e.detectLongSessions(state, recent))
	add(e.detectLateNight(recent))
	add(e.detectHighIntensity(sample, metrics))
	add(e.detectInappropriateContext(sample, metrics))
	add(e.detectWellnessImpact(metrics))
	add(e.detectExcessiveSession(sample))
	add(e.detectExcessiveAppUsage(sample))
	add(e.detectExcessiveInteractions(sample))
	if len(insights) == 0 {
		add(e.detectHealthyUsage(metrics))
	}

	return insights
}

func (e *InsightEngine) detectDailyOveruse(state *entityState, sample *models.TelemetrySample) *models.Insight {
	total := state.daily.Sum(sample.Timestamp)
	if total <= state.thresholds.DailyOveruseHours {
		return nil
	}

	severity := models.SeverityMedium
	if total > e.config.DailyOveruseHardHours {
		severity = models.SeverityHigh
	}
	return &models.Insight{
		PatternType:    models.PatternDailyOveruse,
		Severity:       severity,
		Description:    fmt.Sprintf("Daily screen time %.1f hours exceeds the %.1f hour limit", total, state.thresholds.DailyOveruseHours),
		Recommendation: "Take regular breaks and set app time limits",
		Confidence:     confidenceDailyOveruse,
	}
}

// longSessions returns the summed durations of contiguous positive screen-time runs
// longer than threshold. A run still open at the end of the window counts.
func longSessions(samples []models.TelemetrySample, threshold float64) []float64 {
	var sessions []float64
	current := 0.0
	for _, s := range samples {
		if s.ScreenTime > 0 {
			current += s.ScreenTime
			continue
		}
		if current > threshold {
			sessions = append(sessions, current)
		}
		current = 0
	}
	if current > threshold {
		sessions = append(sessions, current)
	}
	return sessions
}

func (e *InsightEngine) detectLongSessions(state *entityState, recent []models.TelemetrySample) *models.Insight {
	sessions := longSessions(recent, state.thresholds.SessionHours)
	if len(sessions) == 0 {
		return nil
	}
	return &models.Insight{
		PatternType:    models.PatternLongSessions,
		Severity:       models.SeverityMedium,
		Description:    fmt.Sprintf("Detected %d extended usage sessions longer than %.1f hours", len(sessions), state.thresholds.SessionHours),
		Recommendation: "Set session reminders and take breaks every hour",
		Confidence:     confidenceLongSessions,
	}
}

func (e *InsightEngine) inLateBand(hour int) bool {
	return hour >= e.config.LateNightStartHour || hour <= e.config.LateNightEndHour
}

func (e *InsightEngine) detectLateNight(recent []models.TelemetrySample) *models.Insight {
	if len(recent) == 0 {
		return nil
	}

	lateCount := 0
	lateHours := 0.0
	for _, s := range recent {
		if !e.inLateBand(s.Timestamp.Hour()) || s.ScreenTime <= 0 {
			continue
		}
		lateCount++
		lateHours += s.ScreenTime
	}

	size := float64(len(recent))
	countRatio := float64(lateCount) / size
	durationRatio := lateHours / size
	if countRatio <= e.config.LateNightCountRatio && durationRatio <= e.config.LateNightDurationRatio {
		return nil
	}

	return &models.Insight{
		PatternType:    models.PatternLateNightUsage,
		Severity:       models.SeverityHigh,
		Description:    fmt.Sprintf("Excessive late-night device usage detected in %d of the last %d samples", lateCount, len(recent)),
		Recommendation: "Enable sleep mode and avoid screens before bedtime",
		Confidence:     confidenceLateNight,
	}
}

func (e *InsightEngine) detectHighIntensity(sample *models.TelemetrySample, metrics models.DerivedMetrics) *models.Insight {
	threshold := e.config.HighIntensityThreshold
	hour := sample.Timestamp.Hour()
	if hour >= e.config.WorkStartHour && hour < e.config.WorkEndHour {
		threshold = e.config.HighIntensityWorkThreshold
	}

	excess := metrics.UsageIntensity - threshold
	if excess <= 0 {
		return nil
	}

	severity := models.SeverityLow
	switch {
	case excess > 0.2:
		severity = models.SeverityHigh
	case excess > 0.1:
		severity = models.SeverityMedium
	}
	return &models.Insight{
		PatternType:    models.PatternHighIntensityUsage,
		Severity:       severity,
		Description:    fmt.Sprintf("High usage intensity detected: %.2f", metrics.UsageIntensity),
		Recommendation: "Consider taking a break from your device",
		Confidence:     confidenceHighIntensity,
	}
}

func (e *InsightEngine) detectInappropriateContext(sample *models.TelemetrySample, metrics models.DerivedMetrics) *models.Insight {
	if metrics.ContextScore >= e.config.ContextThreshold {
		return nil
	}

	hour := sample.Timestamp.Hour()
	veryLow := metrics.ContextScore < e.config.ContextCriticalThreshold
	lateUse := e.inLateBand(hour) && sample.ScreenTime > minLateNightScreenHours
	misplaced := locationPenalty(sample.Location, hour) > 0
	if !lateUse && !misplaced && !veryLow {
		return nil
	}

	severity := models.SeverityMedium
	if veryLow {
		severity = models.SeverityHigh
	}
	return &models.Insight{
		PatternType:    models.PatternInappropriateContext,
		Severity:       severity,
		Description:    fmt.Sprintf("Device usage in inappropriate context detected (score %.2f at %s)", metrics.ContextScore, sample.Location),
		Recommendation: "Consider environmental factors and timing of device use",
		Confidence:     confidenceInappropriateContext,
	}
}

func (e *InsightEngine) detectWellnessImpact(metrics models.DerivedMetrics) *models.Insight {
	if metrics.WellnessIndicator >= e.config.WellnessThreshold || metrics.UsageIntensity <= e.config.WellnessIntensityThreshold {
		return nil
	}
	return &models.Insight{
		PatternType:    models.PatternWellnessImpact,
		Severity:       models.SeverityHigh,
		Description:    "Device usage may be impacting your wellness",
		Recommendation: "Take a break and engage in physical activity",
		Confidence:     confidenceWellnessImpact,
	}
}

func (e *InsightEngine) detectExcessiveSession(sample *models.TelemetrySample) *models.Insight {
	if sample.ScreenTime <= e.config.ExcessiveSessionHours {
		return nil
	}
	return &models.Insight{
		PatternType:    models.PatternExcessiveSession,
		Severity:       models.SeverityMedium,
		Description:    fmt.Sprintf("Single session of %.1f hours", sample.ScreenTime),
		Recommendation: "Break long sessions into shorter ones",
		Confidence:     confidenceExcessiveSession,
	}
}

func (e *InsightEngine) detectExcessiveAppUsage(sample *models.TelemetrySample) *models.Insight {
	total := sample.TotalAppUsage()
	if total <= e.config.ExcessiveAppUsageHours {
		return nil
	}
	return &models.Insight{
		PatternType:    models.PatternExcessiveAppUsage,
		Severity:       models.SeverityMedium,
		Description:    fmt.Sprintf("App usage of %.1f hours in one sample", total),
		Recommendation: "Review app time limits for your most used apps",
		Confidence:     confidenceExcessiveAppUsage,
	}
}

func (e *InsightEngine) detectExcessiveInteractions(sample *models.TelemetrySample) *models.Insight {
	if sample.TouchInteractions <= e.config.ExcessiveInteractions {
		return nil
	}
	return &models.Insight{
		PatternType:    models.PatternExcessiveInteractions,
		Severity:       models.SeverityLow,
		Description:    fmt.Sprintf("%d touch interactions in one sample", sample.TouchInteractions),
		Recommendation: "Turn off non-essential notifications",
		Confidence:     confidenceExcessiveInteractions,
	}
}

func (e *InsightEngine) detectHealthyUsage(metrics models.DerivedMetrics) *models.Insight {
	if metrics.UsageIntensity >= healthyIntensityCeiling ||
		metrics.ContextScore <= healthyContextFloor ||
		metrics.WellnessIndicator <= healthyWellnessFloor {
		return nil
	}

	e.rngMu.Lock()
	draw := e.rng.Float64()
	e.rngMu.Unlock()
	if draw >= e.config.HealthyProbability {
		return nil
	}

	return &models.Insight{
		PatternType:    models.PatternHealthyUsage,
		Severity:       models.SeverityLow,
		Description:    "Balanced device usage in a good context",
		Recommendation: "Keep up the healthy habits",
		Confidence:     confidenceHealthyUsage,
	}
}

// ApplyControl changes one entity's thresholds or clears its learned patterns
func (e *InsightEngine) ApplyControl(cmd models.ControlCommand) error {
	entityID := cmd.EntityID
	if entityID == "" {
		entityID = e.config.DefaultEntityID
	}

	switch cmd.Type {
	case models.CommandUpdateThreshold:
		if cmd.Value <= 0 {
			return fmt.Errorf("%w: threshold value must be positive, got %v", ErrInvalidCommand, cmd.Value)
		}

		state := e.stateFor(entityID)
		state.mu.Lock()
		defer state.mu.Unlock()

		switch cmd.Threshold {
		case "", models.ThresholdDailyOveruse:
			state.thresholds.DailyOveruseHours = cmd.Value
		case models.ThresholdSessionLength:
			state.thresholds.SessionHours = cmd.Value
		default:
			return fmt.Errorf("%w: unknown threshold %q", ErrInvalidCommand, cmd.Threshold)
		}

		e.logger.Info("Threshold updated",
			zap.String("entity_id", entityID),
			zap.String("threshold", cmd.Threshold),
			zap.Float64("value", cmd.Value))
		return nil

	case models.CommandResetPatterns:
		state := e.stateFor(entityID)
		state.mu.Lock()
		defer state.mu.Unlock()

		state.patterns = make(map[string]*models.UsagePatternStat)
		state.daily.Reset()

		e.logger.Info("Usage patterns reset", zap.String("entity_id", entityID))
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// Thresholds returns the entity's current limits, or the configured defaults for unknown entities
func (e *InsightEngine) Thresholds(entityID string) EntityThresholds {
	state, ok := e.lookup(entityID)
	if !ok {
		return EntityThresholds{
			DailyOveruseHours: e.config.DailyOveruseHours,
			SessionHours:      e.config.SessionThresholdHours,
		}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.thresholds
}

// PatternStats returns a copy of the entity's per-app usage statistics
func (e *InsightEngine) PatternStats(entityID string) map[string]models.UsagePatternStat {
	stats := make(map[string]models.UsagePatternStat)
	state, ok := e.lookup(entityID)
	if !ok {
		return stats
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	for app, stat := range state.patterns {
		stats[app] = *stat
	}
	return stats
}

// Summary describes what has been learned about an entity so far
func (e *InsightEngine) Summary(entityID string) (models.EntitySummary, bool) {
	state, ok := e.lookup(entityID)
	if !ok {
		return models.EntitySummary{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	apps := make([]models.AppUsageSummary, 0, len(state.patterns))
	for app, stat := range state.patterns {
		apps = append(apps, models.AppUsageSummary{App: app, Total: stat.Total, AvgSession: stat.AvgSession})
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].Total != apps[j].Total {
			return apps[i].Total > apps[j].Total
		}
		return apps[i].App < apps[j].App
	})
	if len(apps) > topAppsInSummary {
		apps = apps[:topAppsInSummary]
	}

	return models.EntitySummary{
		EntityID:     entityID,
		DataPoints:   state.history.Len(),
		AppsTracked:  len(state.patterns),
		DaysWithData: len(state.daily.Days()),
		TopApps:      apps,
		OveruseHours: state.thresholds.DailyOveruseHours,
		SessionHours: state.thresholds.SessionHours,
	}, true
}

// Entities lists every tracked entity id in sorted order
func (e *InsightEngine) Entities() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.entities))
	for id := range e.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
