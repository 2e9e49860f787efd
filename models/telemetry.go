package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Location is the coarse place a sample was taken at
type Location string

const (
	LocationHome    Location = "home"
	LocationWork    Location = "work"
	LocationCommute Location = "commute"
	LocationLeisure Location = "leisure"
)

// Locations lists every valid location tag
var Locations = []Location{LocationHome, LocationWork, LocationCommute, LocationLeisure}

func (l Location) Valid() bool {
	switch l {
	case LocationHome, LocationWork, LocationCommute, LocationLeisure:
		return true
	}
	return false
}

// ActivityLevel is the wearable's physical activity classification
type ActivityLevel string

const (
	ActivitySedentary ActivityLevel = "sedentary"
	ActivityLight     ActivityLevel = "light"
	ActivityModerate  ActivityLevel = "moderate"
	ActivityVigorous  ActivityLevel = "vigorous"
)

var ActivityLevels = []ActivityLevel{ActivitySedentary, ActivityLight, ActivityModerate, ActivityVigorous}

// TelemetrySample is one behavioral reading from the smartphone. Durations are in hours.
type TelemetrySample struct {
	Timestamp          time.Time          `json:"timestamp"`
	AppUsage           map[string]float64 `json:"app_usage"`
	Location           Location           `json:"location"`
	CommunicationCount int                `json:"communication_count"`
	TouchInteractions  int                `json:"touch_interactions"`
	UnlockFrequency    int                `json:"unlock_frequency"`
	BatteryLevel       float64            `json:"battery_level"`
	ScreenTime         float64            `json:"screen_time"`
	TypingSpeed        float64            `json:"typing_speed"`
	AmbientLight       float64            `json:"ambient_light"`
	Accelerometer      [3]float64         `json:"accelerometer"`
	NetworkUsage       float64            `json:"network_usage"` // MB
}

// TotalAppUsage sums app durations in a stable key order so results are reproducible.
func (s *TelemetrySample) TotalAppUsage() float64 {
	apps := make([]string, 0, len(s.AppUsage))
	for app := range s.AppUsage {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	total := 0.0
	for _, app := range apps {
		total += s.AppUsage[app]
	}
	return total
}

// WearableData represents a reading from the wearable device
type WearableData struct {
	HeartRate     int           `json:"heart_rate"`
	StressLevel   float64       `json:"stress_level"` // 0..1
	ActivityLevel ActivityLevel `json:"activity_level"`
	SleepQuality  *float64      `json:"sleep_quality,omitempty"`
}

// AmbientData represents a reading from the room's environmental sensors
type AmbientData struct {
	NoiseLevel     float64 `json:"noise_level"`     // dB
	LightIntensity float64 `json:"light_intensity"` // lux
	Temperature    float64 `json:"temperature"`     // Celsius
	Humidity       float64 `json:"humidity"`        // percentage
}

// Observation is the telemetry message published by a simulated device
type Observation struct {
	EntityID string          `json:"entity_id"`
	Sample   TelemetrySample `json:"sample"`
	Wearable WearableData    `json:"wearable"`
	Ambient  AmbientData     `json:"ambient"`
}

var ErrInvalidObservation = errors.New("invalid observation")

// Validate checks the fields the analytics rely on
func (o *Observation) Validate() error {
	if o.EntityID == "" {
		return fmt.Errorf("%w: missing entity_id", ErrInvalidObservation)
	}
	if o.Sample.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidObservation)
	}
	if !o.Sample.Location.Valid() {
		return fmt.Errorf("%w: unknown location %q", ErrInvalidObservation, o.Sample.Location)
	}
	if o.Sample.ScreenTime < 0 {
		return fmt.Errorf("%w: negative screen_time", ErrInvalidObservation)
	}
	for app, hours := range o.Sample.AppUsage {
		if hours < 0 {
			return fmt.Errorf("%w: negative usage for %s", ErrInvalidObservation, app)
		}
	}
	return nil
}
