package services

import (
	"testing"
	"time"

	"unplug/config"
	"unplug/models"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func day(hour, minute int) time.Time {
	return time.Date(2026, 5, 4, hour, minute, 0, 0, time.UTC)
}

func quietSample(ts time.Time, screenHours float64) *models.TelemetrySample {
	return &models.TelemetrySample{
		Timestamp:  ts,
		Location:   models.LocationHome,
		ScreenTime: screenHours,
	}
}

func insightsOfType(insights []*models.Insight, pattern string) []*models.Insight {
	var matched []*models.Insight
	for _, i := range insights {
		if i.PatternType == pattern {
			matched = append(matched, i)
		}
	}
	return matched
}
