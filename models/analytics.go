package models

import "time"

// DerivedMetrics are the per-sample scores, each within [0,1]
type DerivedMetrics struct {
	UsageIntensity    float64 `json:"usage_intensity"`
	ContextScore      float64 `json:"context_score"`
	WellnessIndicator float64 `json:"wellness_indicator"`
}

// UsagePatternStat tracks usage of one app, updated incrementally
type UsagePatternStat struct {
	Total      float64 `json:"total"`
	Sessions   int     `json:"sessions"`
	AvgSession float64 `json:"avg_session"`
}

// Add records one session of the given duration
func (u *UsagePatternStat) Add(duration float64) {
	u.Total += duration
	u.Sessions++
	u.AvgSession = u.Total / float64(u.Sessions)
}

// AnalyticsReport is the unit exchanged between the edge and cloud tiers
type AnalyticsReport struct {
	ProducerID   string         `json:"producer_id"`
	EntityID     string         `json:"entity_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Metrics      DerivedMetrics `json:"derived_metrics"`
	InsightCount int            `json:"insight_count"`
}

// AppUsageSummary is one row of an entity's most-used apps
type AppUsageSummary struct {
	App        string  `json:"app"`
	Total      float64 `json:"total"`
	AvgSession float64 `json:"avg_session"`
}

// EntitySummary describes what the digital twin has learned about an entity
type EntitySummary struct {
	EntityID     string            `json:"entity_id"`
	DataPoints   int               `json:"data_points"`
	AppsTracked  int               `json:"apps_tracked"`
	DaysWithData int               `json:"days_with_data"`
	TopApps      []AppUsageSummary `json:"top_apps"`
	OveruseHours float64           `json:"overuse_threshold"`
	SessionHours float64           `json:"session_threshold"`
}
