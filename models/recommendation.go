package models

import "time"

// TrendLevel classifies the moving averages of recent reports
type TrendLevel string

const (
	TrendNormal   TrendLevel = "normal"
	TrendAlert    TrendLevel = "alert"
	TrendWarning  TrendLevel = "warning"
	TrendCritical TrendLevel = "critical"
)

// TrendSnapshot summarizes the most recent analytics reports
type TrendSnapshot struct {
	Timestamp         time.Time  `json:"timestamp"`
	ReportCount       int        `json:"report_count"`
	AvgUsageIntensity float64    `json:"avg_usage_intensity"`
	AvgContextScore   float64    `json:"avg_context_score"`
	Level             TrendLevel `json:"level"`
	Recommendation    string     `json:"recommendation"`
}

// InterventionLevel is how strongly the system should intervene
type InterventionLevel string

const (
	InterventionLight     InterventionLevel = "light"
	InterventionModerate  InterventionLevel = "moderate"
	InterventionIntensive InterventionLevel = "intensive"
)

// SpecificIntervention is one prioritized action in a recommendation
type SpecificIntervention struct {
	Priority    Severity `json:"priority"`
	Action      string   `json:"action"`
	Reason      string   `json:"reason"`
	PatternType string   `json:"pattern_type"`
}

// BehavioralRecommendation aggregates a batch of insights into an intervention plan
type BehavioralRecommendation struct {
	EntityID              string                 `json:"entity_id"`
	Timestamp             time.Time              `json:"timestamp"`
	TotalIssues           int                    `json:"total_issues"`
	PatternBreakdown      map[string]int         `json:"pattern_breakdown"`
	SeverityBreakdown     map[Severity]int       `json:"severity_breakdown"`
	PatternSeverity       map[string]Severity    `json:"pattern_severity"`
	InterventionLevel     InterventionLevel      `json:"intervention_level"`
	UrgencyScore          float64                `json:"urgency_score"`
	SpecificInterventions []SpecificIntervention `json:"specific_interventions"`
}

// RecommendationSummary is the condensed single-action form of a recommendation
type RecommendationSummary struct {
	EntityID          string            `json:"entity_id"`
	Timestamp         time.Time         `json:"timestamp"`
	TopPattern        string            `json:"top_pattern"`
	Occurrences       int               `json:"occurrences"`
	Action            string            `json:"action"`
	InterventionLevel InterventionLevel `json:"intervention_level"`
	UrgencyScore      float64           `json:"urgency_score"`
}
