package services

import (
	"fmt"
	"math"
	"sync"
	"time"

	"unplug/config"
	"unplug/models"
	"unplug/window"

	"go.uber.org/zap"
)

const (
	intensiveHighCount = 3
	urgencyHighWeight  = 0.3
	urgencyTotalWeight = 0.1
)

var trendRecommendations = map[models.TrendLevel]string{
	models.TrendCritical: "High usage in poor contexts: trigger intensive interventions",
	models.TrendWarning:  "Usage intensity is trending high: suggest regular breaks",
	models.TrendAlert:    "Usage keeps happening in poor contexts: adjust the environment",
	models.TrendNormal:   "Usage patterns are within healthy ranges",
}

// TrendAggregator keeps the most recent analytics reports and turns them and
// insight batches into trends and behavioral recommendations.
type TrendAggregator struct {
	config     *config.Config
	logger     *zap.Logger
	dispatcher *InterventionDispatcher
	now        func() time.Time

	mu      sync.Mutex
	reports *window.Ring[models.AnalyticsReport]
}

func NewTrendAggregator(cfg *config.Config, dispatcher *InterventionDispatcher, logger *zap.Logger) *TrendAggregator {
	return &TrendAggregator{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		now:        time.Now,
		reports:    window.NewRing[models.AnalyticsReport](cfg.ReportWindowSize),
	}
}

// AddReport stores the report and returns the trend over the updated window
func (a *TrendAggregator) AddReport(report models.AnalyticsReport) *models.TrendSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reports.Push(report)
	return a.snapshotLocked()
}

// CurrentTrend returns the trend over the stored reports; false when none were received
func (a *TrendAggregator) CurrentTrend() (*models.TrendSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reports.Len() == 0 {
		return nil, false
	}
	return a.snapshotLocked(), true
}

// ReportCount returns how many reports are held in the window
func (a *TrendAggregator) ReportCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reports.Len()
}

func (a *TrendAggregator) snapshotLocked() *models.TrendSnapshot {
	recent := a.reports.Last(a.config.TrendWindow)

	usage, context := 0.0, 0.0
	for _, r := range recent {
		usage += r.Metrics.UsageIntensity
		context += r.Metrics.ContextScore
	}
	n := float64(len(recent))
	usage /= n
	context /= n

	level := a.classify(usage, context)
	return &models.TrendSnapshot{
		Timestamp:         a.now(),
		ReportCount:       len(recent),
		AvgUsageIntensity: usage,
		AvgContextScore:   context,
		Level:             level,
		Recommendation:    trendRecommendations[level],
	}
}

func (a *TrendAggregator) classify(usage, context float64) models.TrendLevel {
	highUsage := usage > a.config.TrendUsageHigh
	lowContext := context < a.config.TrendContextLow

	switch {
	case highUsage && lowContext:
		return models.TrendCritical
	case highUsage:
		return models.TrendWarning
	case lowContext:
		return models.TrendAlert
	default:
		return models.TrendNormal
	}
}

// Recommend aggregates a batch of insights into an intervention plan
func (a *TrendAggregator) Recommend(entityID string, insights []models.Insight) *models.BehavioralRecommendation {
	rec := &models.BehavioralRecommendation{
		EntityID:          entityID,
		Timestamp:         a.now(),
		TotalIssues:       len(insights),
		PatternBreakdown:  make(map[string]int),
		SeverityBreakdown: make(map[models.Severity]int),
		PatternSeverity:   make(map[string]models.Severity),
	}

	var order []string
	fallback := make(map[string]string)
	for _, in := range insights {
		if _, seen := rec.PatternBreakdown[in.PatternType]; !seen {
			order = append(order, in.PatternType)
			fallback[in.PatternType] = in.Recommendation
		}
		rec.PatternBreakdown[in.PatternType]++
		rec.SeverityBreakdown[in.Severity]++
		if in.Severity.Rank() > rec.PatternSeverity[in.PatternType].Rank() {
			rec.PatternSeverity[in.PatternType] = in.Severity
		}
	}

	high := rec.SeverityBreakdown[models.SeverityHigh]
	switch {
	case high >= intensiveHighCount:
		rec.InterventionLevel = models.InterventionIntensive
	case high >= 1:
		rec.InterventionLevel = models.InterventionModerate
	default:
		rec.InterventionLevel = models.InterventionLight
	}
	rec.UrgencyScore = math.Min(1, urgencyHighWeight*float64(high)+urgencyTotalWeight*float64(len(insights)))

	rec.SpecificInterventions = []models.SpecificIntervention{}
	for _, pattern := range order {
		severity := rec.PatternSeverity[pattern]
		reason := fmt.Sprintf("%d %s occurrence(s), worst severity %s", rec.PatternBreakdown[pattern], pattern, severity)

		ivs := a.dispatcher.InterventionsFor(pattern, severity)
		if len(ivs) == 0 {
			rec.SpecificInterventions = append(rec.SpecificInterventions, models.SpecificIntervention{
				Priority:    severity,
				Action:      fallback[pattern],
				Reason:      reason,
				PatternType: pattern,
			})
			continue
		}
		for _, iv := range ivs {
			rec.SpecificInterventions = append(rec.SpecificInterventions, models.SpecificIntervention{
				Priority:    severity,
				Action:      iv.Description,
				Reason:      reason,
				PatternType: pattern,
			})
		}
	}

	return rec
}

// Summarize condenses a recommendation to its most frequent pattern and that
// pattern's first action. Ties go to the pattern seen first.
func (a *TrendAggregator) Summarize(rec *models.BehavioralRecommendation) *models.RecommendationSummary {
	summary := &models.RecommendationSummary{
		EntityID:          rec.EntityID,
		Timestamp:         rec.Timestamp,
		InterventionLevel: rec.InterventionLevel,
		UrgencyScore:      rec.UrgencyScore,
	}

	for _, si := range rec.SpecificInterventions {
		if count := rec.PatternBreakdown[si.PatternType]; count > summary.Occurrences {
			summary.TopPattern = si.PatternType
			summary.Occurrences = count
			summary.Action = si.Action
		}
	}
	return summary
}
