package models

import (
	"time"
)

// ComponentStatus represents the last known state of a pipeline component
type ComponentStatus string

const (
	ComponentHealthy  ComponentStatus = "healthy"
	ComponentDegraded ComponentStatus = "degraded"
	ComponentFailed   ComponentStatus = "failed"
	ComponentUnknown  ComponentStatus = "unknown"
)

// SystemStatus is the overall verdict of a health evaluation
type SystemStatus string

const (
	SystemHealthy  SystemStatus = "healthy"
	SystemDegraded SystemStatus = "degraded"
	SystemCritical SystemStatus = "critical"
)

// Error kinds carried by component reports. Malformed marks a payload that is
// not JSON at all; the health monitor already counts those from the raw message.
const (
	ErrorKindDecode     = "decode"
	ErrorKindMalformed  = "malformed"
	ErrorKindProcessing = "processing"
)

// ComponentReport is the health message a component publishes about itself
type ComponentReport struct {
	Component    string          `json:"component"`
	Status       ComponentStatus `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	EntityID     string          `json:"entity_id,omitempty"`
	ResponseTime *float64        `json:"response_time,omitempty"` // seconds
	Error        string          `json:"error,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
}

// ComponentHealthStatus tracks the health state of a component
type ComponentHealthStatus struct {
	Component       string          `json:"component"`
	Status          ComponentStatus `json:"status"`
	LastSeen        time.Time       `json:"last_seen"`
	ErrorCount      int             `json:"error_count"`
	MessageCount    int             `json:"message_count"`
	AvgResponseTime float64         `json:"avg_response_time"`
	LastError       string          `json:"last_error,omitempty"`
}

// SystemHealthMetrics is one evaluation of the whole pipeline
type SystemHealthMetrics struct {
	Timestamp           time.Time    `json:"timestamp"`
	OverallHealthScore  float64      `json:"overall_health_score"`
	Uptime              float64      `json:"uptime"`
	ComponentFailures   int          `json:"component_failures"`
	ErrorRate           float64      `json:"error_rate"`        // errors per minute
	AvgResponseTime     float64      `json:"avg_response_time"` // seconds
	DataLossRate        float64      `json:"data_loss_rate"`
	ConnectionStability float64      `json:"connection_stability"`
	SystemStatus        SystemStatus `json:"system_status"`
	ComponentsTracked   int          `json:"components_tracked"`
}

// Heartbeat is published by the health monitor on its own cadence
type Heartbeat struct {
	MonitorID         string       `json:"monitor_id"`
	Timestamp         time.Time    `json:"timestamp"`
	Status            SystemStatus `json:"status"`
	ComponentsTracked int          `json:"components_tracked"`
	HistorySize       int          `json:"history_size"`
}

// ComponentSummary counts tracked components by status
type ComponentSummary struct {
	Total      int                              `json:"total"`
	Healthy    int                              `json:"healthy"`
	Degraded   int                              `json:"degraded"`
	Failed     int                              `json:"failed"`
	Unknown    int                              `json:"unknown"`
	Components map[string]ComponentHealthStatus `json:"components"`
}

// ErrorTypeCount is one row of the most common error types
type ErrorTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ErrorAnalysis summarizes the recorded error events
type ErrorAnalysis struct {
	TotalErrors       int              `json:"total_errors"`
	LastHourErrors    int              `json:"last_hour_errors"`
	DataLossEvents    int              `json:"data_loss_events"`
	ErrorsByComponent map[string]int   `json:"errors_by_component"`
	TopErrorTypes     []ErrorTypeCount `json:"top_error_types"`
}

// HealthReport is the document handed to the report sink
type HealthReport struct {
	ID                      string               `json:"id"`
	ReportTimestamp         time.Time            `json:"report_timestamp"`
	MonitoringDurationHours float64              `json:"monitoring_duration_hours"`
	Latest                  *SystemHealthMetrics `json:"latest_metrics,omitempty"`
	HistorySize             int                  `json:"history_size"`
	ComponentSummary        ComponentSummary     `json:"component_summary"`
	ErrorAnalysis           ErrorAnalysis        `json:"error_analysis"`
	Recommendations         []string             `json:"recommendations"`
}

// GetStatusEmoji returns appropriate emoji for the system status
func (s SystemStatus) GetStatusEmoji() string {
	switch s {
	case SystemHealthy:
		return "✅"
	case SystemDegraded:
		return "⚠️"
	case SystemCritical:
		return "🚨"
	default:
		return "❔"
	}
}
