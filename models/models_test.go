package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(ts time.Time) TelemetrySample {
	return TelemetrySample{
		Timestamp:          ts,
		AppUsage:           map[string]float64{"social_media": 0.75, "video": 1.25},
		Location:           LocationHome,
		CommunicationCount: 4,
		TouchInteractions:  320,
		UnlockFrequency:    17,
		BatteryLevel:       64.5,
		ScreenTime:         1.5,
		TypingSpeed:        38.2,
		AmbientLight:       120,
		Accelerometer:      [3]float64{0.1, -0.2, 9.8},
		NetworkUsage:       45.75,
	}
}

func TestTelemetrySampleRoundTrip(t *testing.T) {
	want := sampleAt(time.Date(2026, 3, 14, 22, 15, 0, 0, time.UTC))

	payload, err := json.Marshal(want)
	require.NoError(t, err)

	var decoded TelemetrySample
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, want, decoded)
}

func TestAnalyticsReportRoundTrip(t *testing.T) {
	want := AnalyticsReport{
		ProducerID: "edge-1",
		EntityID:   "user_001",
		Timestamp:  time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Metrics: DerivedMetrics{
			UsageIntensity:    0.625,
			ContextScore:      0.25,
			WellnessIndicator: 0.5,
		},
		InsightCount: 3,
	}

	payload, err := json.Marshal(want)
	require.NoError(t, err)

	var decoded AnalyticsReport
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, want, decoded)
}

func TestTotalAppUsage(t *testing.T) {
	s := sampleAt(time.Now())
	assert.InDelta(t, 2.0, s.TotalAppUsage(), 1e-9)

	s.AppUsage = nil
	assert.Zero(t, s.TotalAppUsage())
}

func TestUsagePatternStatAdd(t *testing.T) {
	var stat UsagePatternStat
	durations := []float64{0.5, 1.5, 0.25, 2}
	sum := 0.0
	for i, d := range durations {
		stat.Add(d)
		sum += d
		assert.Equal(t, i+1, stat.Sessions)
		assert.Equal(t, sum, stat.Total)
		assert.InDelta(t, stat.Total/float64(stat.Sessions), stat.AvgSession, 1e-12)
	}
}

func TestObservationValidate(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	valid := Observation{EntityID: "user_001", Sample: sampleAt(ts)}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(o *Observation)
	}{
		{"missing entity", func(o *Observation) { o.EntityID = "" }},
		{"zero timestamp", func(o *Observation) { o.Sample.Timestamp = time.Time{} }},
		{"unknown location", func(o *Observation) { o.Sample.Location = "moon" }},
		{"negative screen time", func(o *Observation) { o.Sample.ScreenTime = -1 }},
		{"negative app usage", func(o *Observation) { o.Sample.AppUsage = map[string]float64{"games": -0.5} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			o.Sample.AppUsage = map[string]float64{"video": 1}
			tt.mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidObservation))
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Zero(t, Severity("bogus").Rank())
}
