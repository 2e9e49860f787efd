package services

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"unplug/config"
	"unplug/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService delivers health transitions and intensive recommendations to a chat
type TelegramService struct {
	bot            messageSender
	chatID         int64
	config         *config.Config
	logger         *zap.Logger
	now            func() time.Time
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time // keyed by entity or "system"
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := newTelegramService(cfg, bot, chatID, logger)

	if err := ts.testConnection(bot); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

func newTelegramService(cfg *config.Config, bot messageSender, chatID int64, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		config:         cfg,
		logger:         logger,
		now:            time.Now,
		lastAlertTimes: make(map[string]time.Time),
	}
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection(bot *tgbotapi.BotAPI) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// shouldThrottle reports whether key was alerted within the throttle window, and
// records the alert time when it was not.
func (ts *TelegramService) shouldThrottle(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if last, ok := ts.lastAlertTimes[key]; ok && now.Sub(last) < ts.config.AlertThrottle {
		return true
	}
	ts.lastAlertTimes[key] = now
	return false
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// NotifyHealthChange alerts when the system enters or leaves critical status.
// Recoveries are never throttled.
func (ts *TelegramService) NotifyHealthChange(previous models.SystemStatus, current models.SystemHealthMetrics) error {
	entering := current.SystemStatus == models.SystemCritical
	if entering && ts.shouldThrottle("system") {
		ts.logger.Debug("Throttling health alert")
		return nil
	}

	if err := ts.send(formatHealthMessage(previous, current)); err != nil {
		return fmt.Errorf("error sending health alert: %w", err)
	}

	ts.logger.Info("Sent health alert",
		zap.String("previous", string(previous)),
		zap.String("current", string(current.SystemStatus)),
		zap.Float64("health_score", current.OverallHealthScore))
	return nil
}

// NotifyRecommendation alerts about a recommendation, throttled per entity
func (ts *TelegramService) NotifyRecommendation(rec *models.BehavioralRecommendation) error {
	if ts.shouldThrottle(rec.EntityID) {
		ts.logger.Debug("Throttling recommendation alert", zap.String("entity_id", rec.EntityID))
		return nil
	}

	if err := ts.send(formatRecommendationMessage(rec)); err != nil {
		return fmt.Errorf("error sending recommendation alert: %w", err)
	}

	ts.logger.Info("Sent recommendation alert",
		zap.String("entity_id", rec.EntityID),
		zap.Int("total_issues", rec.TotalIssues))
	return nil
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := fmt.Sprintf("🟢 <b>%s Started</b>\n\n", strings.ToUpper(ts.config.ServiceName)) +
		fmt.Sprintf("📡 Transport: %s\n", ts.config.Transport) +
		"🤖 Telegram notifications active\n" +
		"👀 Monitoring digital wellbeing and system health...\n\n" +
		"✅ System is ready and operational!"

	return ts.send(message)
}

// SendShutdownMessage sends the final health summary when the service stops
func (ts *TelegramService) SendShutdownMessage(report *models.HealthReport) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("🔴 <b>%s Stopped</b>\n\n", strings.ToUpper(ts.config.ServiceName)))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Monitored:</b> %s\n", formatDuration(time.Duration(report.MonitoringDurationHours*float64(time.Hour)))))
	if report.Latest != nil {
		sb.WriteString(fmt.Sprintf("%s <b>Final Status:</b> %s (score %.2f)\n",
			report.Latest.SystemStatus.GetStatusEmoji(),
			report.Latest.SystemStatus,
			report.Latest.OverallHealthScore))
	}
	sb.WriteString(fmt.Sprintf("🔧 <b>Errors:</b> %d, <b>Data Loss Events:</b> %d",
		report.ErrorAnalysis.TotalErrors,
		report.ErrorAnalysis.DataLossEvents))

	return ts.send(sb.String())
}

func formatHealthMessage(previous models.SystemStatus, m models.SystemHealthMetrics) string {
	var sb strings.Builder

	if m.SystemStatus == models.SystemCritical {
		sb.WriteString("🚨 <b>SYSTEM HEALTH CRITICAL</b> 🚨\n\n")
	} else {
		sb.WriteString("✅ <b>SYSTEM HEALTH RECOVERED</b> ✅\n\n")
	}

	sb.WriteString(fmt.Sprintf("%s <b>Status:</b> %s → %s\n", m.SystemStatus.GetStatusEmoji(),
		html.EscapeString(string(previous)), html.EscapeString(string(m.SystemStatus))))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", m.Timestamp.Format("2006-01-02 15:04:05")))

	sb.WriteString("📊 <b>Metrics:</b>\n")
	sb.WriteString(fmt.Sprintf("💯 Health Score: %.2f\n", m.OverallHealthScore))
	sb.WriteString(fmt.Sprintf("⏰ Uptime: %.1f%%\n", m.Uptime*100))
	sb.WriteString(fmt.Sprintf("🔧 Error Rate: %.3f/min\n", m.ErrorRate))
	sb.WriteString(fmt.Sprintf("⏱️ Response Time: %.2fs\n", m.AvgResponseTime))
	sb.WriteString(fmt.Sprintf("📡 Data Loss: %.1f%%\n", m.DataLossRate*100))
	sb.WriteString(fmt.Sprintf("🔌 Stability: %.1f%%\n", m.ConnectionStability*100))
	sb.WriteString(fmt.Sprintf("🚨 Failed Components: %d/%d", m.ComponentFailures, m.ComponentsTracked))

	return sb.String()
}

func formatRecommendationMessage(rec *models.BehavioralRecommendation) string {
	var sb strings.Builder

	sb.WriteString("🧘 <b>INTENSIVE INTERVENTION RECOMMENDED</b>\n\n")
	sb.WriteString(fmt.Sprintf("👤 <b>Entity:</b> %s\n", html.EscapeString(rec.EntityID)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", rec.Timestamp.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("📈 <b>Urgency:</b> %.2f (%d issues)\n\n", rec.UrgencyScore, rec.TotalIssues))

	patterns := make([]string, 0, len(rec.PatternBreakdown))
	for p := range rec.PatternBreakdown {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	sb.WriteString("⚠️ <b>Detected Patterns:</b>\n")
	for _, p := range patterns {
		insight := models.Insight{PatternType: p, Severity: rec.PatternSeverity[p]}
		sb.WriteString(fmt.Sprintf("%s %s <b>%s</b> ×%d\n",
			insight.Severity.GetSeverityColor(),
			insight.GetPatternEmoji(),
			html.EscapeString(patternTitle(p)),
			rec.PatternBreakdown[p]))
	}

	if len(rec.SpecificInterventions) > 0 {
		sb.WriteString("\n💡 <b>Recommended Actions:</b>\n")
		for _, iv := range rec.SpecificInterventions {
			sb.WriteString(fmt.Sprintf("• %s\n   └ %s\n", html.EscapeString(iv.Action), html.EscapeString(iv.Reason)))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// patternTitle turns a pattern tag into a readable title
func patternTitle(pattern string) string {
	words := strings.Split(pattern, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
