package services

import (
	"testing"
	"time"

	"unplug/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func newTestTelegram(t *testing.T) (*TelegramService, *fakeSender, *fakeClock) {
	cfg := testConfig(t)
	cfg.AlertThrottle = 15 * time.Second

	sender := &fakeSender{}
	clock := &fakeClock{t: day(21, 0)}
	ts := newTelegramService(cfg, sender, 42, zaptest.NewLogger(t))
	ts.now = clock.Now
	return ts, sender, clock
}

func intensiveRecommendation(entityID string) *models.BehavioralRecommendation {
	return &models.BehavioralRecommendation{
		EntityID:          entityID,
		Timestamp:         day(21, 0),
		TotalIssues:       3,
		PatternBreakdown:  map[string]int{models.PatternLateNightUsage: 2, models.PatternDailyOveruse: 1},
		PatternSeverity:   map[string]models.Severity{models.PatternLateNightUsage: models.SeverityHigh, models.PatternDailyOveruse: models.SeverityMedium},
		InterventionLevel: models.InterventionIntensive,
		UrgencyScore:      0.8,
		SpecificInterventions: []models.SpecificIntervention{
			{Priority: models.SeverityHigh, Action: "Enable night mode", Reason: "Late-night usage", PatternType: models.PatternLateNightUsage},
		},
	}
}

func TestTelegramRecommendationThrottledPerEntity(t *testing.T) {
	ts, sender, clock := newTestTelegram(t)

	require.NoError(t, ts.NotifyRecommendation(intensiveRecommendation("user_001")))
	require.NoError(t, ts.NotifyRecommendation(intensiveRecommendation("user_001")))
	require.NoError(t, ts.NotifyRecommendation(intensiveRecommendation("user_002")))
	assert.Len(t, sender.sent, 2)

	clock.Advance(16 * time.Second)
	require.NoError(t, ts.NotifyRecommendation(intensiveRecommendation("user_001")))
	assert.Len(t, sender.sent, 3)

	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, "user_001")
	assert.Contains(t, msg.Text, "Late Night Usage</b> ×2")
	assert.Contains(t, msg.Text, "Enable night mode")
}

func TestRecommendationMessageEscapesHTML(t *testing.T) {
	rec := intensiveRecommendation("user<1>&co")
	rec.SpecificInterventions[0].Action = "Keep screen time < 2h & rest"
	rec.SpecificInterventions[0].Reason = "3 <late> sessions"

	text := formatRecommendationMessage(rec)
	assert.Contains(t, text, "user&lt;1&gt;&amp;co")
	assert.Contains(t, text, "Keep screen time &lt; 2h &amp; rest")
	assert.Contains(t, text, "3 &lt;late&gt; sessions")
	assert.NotContains(t, text, "<late>")
	assert.Contains(t, text, "<b>Entity:</b>")
}

func TestTelegramRecoveryIsNotThrottled(t *testing.T) {
	ts, sender, _ := newTestTelegram(t)

	critical := models.SystemHealthMetrics{Timestamp: day(21, 0), SystemStatus: models.SystemCritical}
	healthy := models.SystemHealthMetrics{Timestamp: day(21, 0), SystemStatus: models.SystemHealthy}

	require.NoError(t, ts.NotifyHealthChange(models.SystemHealthy, critical))
	require.NoError(t, ts.NotifyHealthChange(models.SystemCritical, healthy))
	require.NoError(t, ts.NotifyHealthChange(models.SystemHealthy, critical))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Text, "SYSTEM HEALTH CRITICAL")
	assert.Contains(t, sender.sent[1].Text, "SYSTEM HEALTH RECOVERED")
}

func TestPatternTitle(t *testing.T) {
	assert.Equal(t, "Late Night Usage", patternTitle(models.PatternLateNightUsage))
	assert.Equal(t, "Custom", patternTitle("custom"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 seconds", formatDuration(45*time.Second))
	assert.Equal(t, "2 min 5 sec", formatDuration(125*time.Second))
	assert.Equal(t, "3 hr 20 min", formatDuration(3*time.Hour+20*time.Minute))
	assert.Equal(t, "2 days 1 hr", formatDuration(49*time.Hour))
}
