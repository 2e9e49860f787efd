package models

import "time"

// Severity represents how serious a detected pattern is
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so they can be compared
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Known pattern types. PatternType is an open tag; other values are carried through untouched.
const (
	PatternDailyOveruse          = "daily_overuse"
	PatternLongSessions          = "long_sessions"
	PatternLateNightUsage        = "late_night_usage"
	PatternHighIntensityUsage    = "high_intensity_usage"
	PatternInappropriateContext  = "inappropriate_context"
	PatternWellnessImpact        = "wellness_impact"
	PatternExcessiveSession      = "excessive_session"
	PatternExcessiveAppUsage     = "excessive_app_usage"
	PatternExcessiveInteractions = "excessive_interactions"
	PatternHealthyUsage          = "healthy_usage"
)

// Insight represents a detected behavioral pattern
type Insight struct {
	PatternType    string   `json:"pattern_type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
}

// InsightBatch is the set of insights one sample produced
type InsightBatch struct {
	ID         string    `json:"id"`
	ProducerID string    `json:"producer_id"`
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
	Insights   []Insight `json:"insights"`
}

// GetPatternEmoji returns appropriate emoji for pattern type
func (i *Insight) GetPatternEmoji() string {
	switch i.PatternType {
	case PatternDailyOveruse, PatternExcessiveAppUsage:
		return "📱"
	case PatternLongSessions, PatternExcessiveSession:
		return "⏳"
	case PatternLateNightUsage:
		return "🌙"
	case PatternHighIntensityUsage, PatternExcessiveInteractions:
		return "⚡"
	case PatternInappropriateContext:
		return "📍"
	case PatternWellnessImpact:
		return "💪"
	case PatternHealthyUsage:
		return "🌱"
	default:
		return "⚠️"
	}
}

// GetSeverityColor returns color for Telegram formatting
func (s Severity) GetSeverityColor() string {
	switch s {
	case SeverityHigh:
		return "🔴"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}
