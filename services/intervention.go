package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"unplug/config"
	"unplug/metrics"
	"unplug/models"
	"unplug/window"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Known smart home devices
const (
	DeviceSmartLights  = "smart_lights"
	DeviceSmartSpeaker = "smart_speaker"
	DeviceThermostat   = "thermostat"
	DeviceSmartphone   = "smartphone"
)

var ErrUnknownDevice = errors.New("unknown device")

// InterventionDispatcher maps detected patterns onto device actions and keeps
// the last applied settings per device plus a history of every application.
type InterventionDispatcher struct {
	config *config.Config
	logger *zap.Logger
	known  map[string]struct{}
	now    func() time.Time

	mu      sync.Mutex
	states  map[string]models.SmartHomeIntervention
	history *window.Ring[models.InterventionRecord]
	total   int
}

func NewInterventionDispatcher(cfg *config.Config, logger *zap.Logger) *InterventionDispatcher {
	known := make(map[string]struct{}, len(cfg.KnownDevices))
	for _, id := range cfg.KnownDevices {
		known[id] = struct{}{}
	}
	return &InterventionDispatcher{
		config:  cfg,
		logger:  logger,
		known:   known,
		now:     time.Now,
		states:  make(map[string]models.SmartHomeIntervention),
		history: window.NewRing[models.InterventionRecord](cfg.EventLogSize),
	}
}

// InterventionsFor returns the device actions for a pattern, tuned by severity.
// Patterns without a device mapping return nil.
func (d *InterventionDispatcher) InterventionsFor(pattern string, severity models.Severity) []models.SmartHomeIntervention {
	high := severity == models.SeverityHigh

	switch pattern {
	case models.PatternLateNightUsage:
		brightness, colorTemp := 20, 2700
		if high {
			brightness, colorTemp = 10, 2200
		}
		return []models.SmartHomeIntervention{
			{
				DeviceID:    DeviceSmartLights,
				Action:      "night_mode",
				Description: "Dim the lights to a warm night setting",
				Settings:    map[string]any{"brightness": brightness, "color_temperature": colorTemp},
			},
			{
				DeviceID:    DeviceSmartSpeaker,
				Action:      "sleep_mode",
				Description: "Start the sleep routine on the speaker",
				Settings:    map[string]any{"volume": 10, "play_sleep_sounds": high},
			},
		}

	case models.PatternHighIntensityUsage:
		interval := 30
		if high {
			interval = 15
		}
		return []models.SmartHomeIntervention{
			{
				DeviceID:    DeviceSmartLights,
				Action:      "adjust_lighting",
				Description: "Shift the lights to a neutral focus level",
				Settings:    map[string]any{"brightness": 60, "color_temperature": 4000},
			},
			{
				DeviceID:    DeviceSmartSpeaker,
				Action:      "break_reminder",
				Description: "Announce a reminder to take a screen break",
				Settings:    map[string]any{"message": "Time for a short break away from your screen", "interval_minutes": interval},
			},
		}

	case models.PatternInappropriateContext:
		color := "amber"
		if high {
			color = "red"
		}
		return []models.SmartHomeIntervention{
			{
				DeviceID:    DeviceSmartphone,
				Action:      "context_notification",
				Description: "Notify that this is a poor time or place for device use",
				Settings:    map[string]any{"priority": string(severity), "message": "Consider putting your phone away for now"},
			},
			{
				DeviceID:    DeviceSmartLights,
				Action:      "attention_alert",
				Description: "Pulse the lights to draw attention away from the screen",
				Settings:    map[string]any{"pattern": "pulse", "color": color},
			},
		}

	case models.PatternWellnessImpact:
		activity := "stretch"
		if high {
			activity = "walk"
		}
		return []models.SmartHomeIntervention{
			{
				DeviceID:    DeviceThermostat,
				Action:      "optimize_comfort",
				Description: "Adjust the room temperature for comfort",
				Settings:    map[string]any{"target_temperature": 21.5, "mode": "comfort"},
			},
			{
				DeviceID:    DeviceSmartSpeaker,
				Action:      "wellness_reminder",
				Description: "Suggest a short physical activity",
				Settings:    map[string]any{"suggested_activity": activity},
			},
		}
	}
	return nil
}

// Apply records iv as the device's current state and appends it to the history.
func (d *InterventionDispatcher) Apply(iv models.SmartHomeIntervention) error {
	if _, ok := d.known[iv.DeviceID]; !ok {
		metrics.InterventionsRejected.WithLabelValues(iv.DeviceID).Inc()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, iv.DeviceID)
	}

	record := models.InterventionRecord{
		ID:           uuid.NewString(),
		Timestamp:    d.now(),
		Intervention: iv,
	}

	d.mu.Lock()
	d.states[iv.DeviceID] = iv
	d.history.Push(record)
	d.total++
	d.mu.Unlock()

	metrics.InterventionsApplied.WithLabelValues(iv.DeviceID, iv.Action).Inc()
	d.logger.Info("Intervention applied",
		zap.String("device_id", iv.DeviceID),
		zap.String("action", iv.Action),
		zap.String("record_id", record.ID))
	return nil
}

// Summary returns the totals and the n most recent history entries
func (d *InterventionDispatcher) Summary(n int) models.InterventionSummary {
	d.mu.Lock()
	defer d.mu.Unlock()

	return models.InterventionSummary{
		TotalInterventions: d.total,
		DevicesWithState:   len(d.states),
		Recent:             d.history.Last(n),
	}
}

// DeviceStates returns a copy of the last applied intervention per device
func (d *InterventionDispatcher) DeviceStates() map[string]models.SmartHomeIntervention {
	d.mu.Lock()
	defer d.mu.Unlock()

	states := make(map[string]models.SmartHomeIntervention, len(d.states))
	for id, iv := range d.states {
		states[id] = iv
	}
	return states
}

// KnownDevices lists the devices interventions may target
func (d *InterventionDispatcher) KnownDevices() []string {
	devices := make([]string, 0, len(d.known))
	for id := range d.known {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices
}
