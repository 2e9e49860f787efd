package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "mqtt", cfg.Transport)
	assert.Equal(t, 5, cfg.ConnectMaxRetries)
	assert.Equal(t, 8.0, cfg.DailyOveruseHours)
	assert.Equal(t, 2.0, cfg.SessionThresholdHours)
	assert.Equal(t, 1000, cfg.HistorySize)
	assert.Equal(t, 50, cfg.RecentWindow)
	assert.Equal(t, 30*time.Second, cfg.HealthEvalInterval)
	assert.Equal(t, 5*time.Minute, cfg.StalenessCeiling)
	assert.Equal(t, 0.0, cfg.ContextJitter)
	assert.Len(t, cfg.ExpectedComponents, 4)
	assert.Contains(t, cfg.KnownDevices, "smart_lights")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TRANSPORT", "AMQP")
	t.Setenv("DAILY_OVERUSE_HOURS", "5.5")
	t.Setenv("HEALTH_EVAL_INTERVAL", "10s")
	t.Setenv("KNOWN_DEVICES", "lamp, speaker ,")
	t.Setenv("HISTORY_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "amqp", cfg.Transport)
	assert.Equal(t, 5.5, cfg.DailyOveruseHours)
	assert.Equal(t, 10*time.Second, cfg.HealthEvalInterval)
	assert.Equal(t, []string{"lamp", "speaker"}, cfg.KnownDevices)
	assert.Equal(t, 1000, cfg.HistorySize, "unparsable values fall back to defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", modify: func(*Config) {}},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Transport = "kafka" },
			wantErr: "unsupported transport",
		},
		{
			name:    "zero history",
			modify:  func(c *Config) { c.HistorySize = 0 },
			wantErr: "HISTORY_SIZE must be positive",
		},
		{
			name:    "probability out of range",
			modify:  func(c *Config) { c.HealthyProbability = 1.5 },
			wantErr: "HEALTHY_PROBABILITY",
		},
		{
			name:    "hard ceiling below threshold",
			modify:  func(c *Config) { c.DailyOveruseHardHours = 4 },
			wantErr: "DAILY_OVERUSE_HARD_HOURS",
		},
		{
			name:    "zero connect retries",
			modify:  func(c *Config) { c.ConnectMaxRetries = 0 },
			wantErr: "CONNECT_MAX_RETRIES must be positive",
		},
		{
			name:    "zero interval",
			modify:  func(c *Config) { c.HealthEvalInterval = 0 },
			wantErr: "HEALTH_EVAL_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.modify(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestComponentTopic(t *testing.T) {
	cfg := &Config{TopicPrefix: "iot"}
	assert.Equal(t, "iot/edge/health", cfg.ComponentTopic("edge", "health"))
}
