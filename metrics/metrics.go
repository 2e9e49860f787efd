package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	// Transport metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_messages_received_total",
			Help: "Total number of inbound messages observed by the health monitor",
		},
		[]string{"component"},
	)

	DataLossEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_data_loss_events_total",
			Help: "Total number of undecodable or dropped inbound messages",
		},
		[]string{"component"},
	)

	ProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_processing_errors_total",
			Help: "Total number of errors raised inside message handlers",
		},
		[]string{"component"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_publish_failures_total",
			Help: "Total number of publish attempts that failed",
		},
		[]string{"transport"},
	)

	// Analytics metrics
	InsightsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_insights_total",
			Help: "Total number of behavioral insights emitted",
		},
		[]string{"pattern", "severity"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unplug_processing_duration_seconds",
			Help:    "Time spent processing one inbound message",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"component"},
	)

	TrendLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unplug_trend_level",
			Help: "Current trend level (1 for the active level, 0 otherwise)",
		},
		[]string{"level"},
	)

	// Intervention metrics
	InterventionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_interventions_applied_total",
			Help: "Total number of smart home interventions applied",
		},
		[]string{"device", "action"},
	)

	InterventionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unplug_interventions_rejected_total",
			Help: "Total number of interventions rejected for an unknown device",
		},
		[]string{"device"},
	)

	// Health metrics
	HealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_score",
			Help: "Composite system health score in [0,1]",
		},
	)

	HealthUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_uptime_ratio",
			Help: "Fraction of monitored time the system was healthy or degraded",
		},
	)

	HealthErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_error_rate",
			Help: "Errors per minute over the last hour",
		},
	)

	HealthResponseTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_avg_response_time_seconds",
			Help: "Mean buffered component response time",
		},
	)

	HealthDataLossRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_data_loss_rate",
			Help: "Share of inbound messages lost over the last hour",
		},
	)

	HealthConnectionStability = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_connection_stability",
			Help: "Observed versus expected inbound message volume",
		},
	)

	HealthComponentFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unplug_health_component_failures",
			Help: "Number of tracked components that are failed or stale",
		},
	)

	SystemStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unplug_system_status",
			Help: "Current system status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"},
	)
)

// SetActive marks one label of a one-hot gauge vector and clears the others.
func SetActive(vec *prometheus.GaugeVec, active string, all ...string) {
	for _, label := range all {
		value := 0.0
		if label == active {
			value = 1
		}
		vec.WithLabelValues(label).Set(value)
	}
}
