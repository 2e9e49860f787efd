package services

import (
	"math"
	"math/rand"
	"sync"

	"unplug/config"
	"unplug/models"
)

// Time-of-day penalties applied to the context score
const (
	deepNightPenalty  = 0.8
	transitionPenalty = 0.4
	commutePenalty    = 0.3

	lateWorkPenalty     = 0.2
	nightCommutePenalty = 0.15
	lateWorkHour        = 20

	usagePenaltyWeight = 0.1
	lightPenaltyWeight = 0.2
	noisePenaltyWeight = 0.1
)

var activityScores = map[models.ActivityLevel]float64{
	models.ActivitySedentary: 0.2,
	models.ActivityLight:     0.5,
	models.ActivityModerate:  0.8,
	models.ActivityVigorous:  1.0,
}

// MetricCalculator derives per-sample scores. Apart from the optional seeded
// jitter on the context score it holds no state.
type MetricCalculator struct {
	config *config.Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMetricCalculator(cfg *config.Config) *MetricCalculator {
	return &MetricCalculator{
		config: cfg,
		rng:    rand.New(rand.NewSource(cfg.RandomSeed)),
	}
}

// Compute returns all three derived metrics for an observation
func (c *MetricCalculator) Compute(obs *models.Observation) models.DerivedMetrics {
	return models.DerivedMetrics{
		UsageIntensity:    c.UsageIntensity(&obs.Sample),
		ContextScore:      c.ContextScore(&obs.Sample, &obs.Ambient),
		WellnessIndicator: c.WellnessIndicator(&obs.Wearable),
	}
}

// UsageIntensity is the equal-weight mean of four normalized usage factors
func (c *MetricCalculator) UsageIntensity(s *models.TelemetrySample) float64 {
	factors := []float64{
		normalize(s.ScreenTime, c.config.ScreenTimeCeiling),
		normalize(float64(s.TouchInteractions), c.config.InteractionCeiling),
		normalize(float64(s.UnlockFrequency), c.config.UnlockCeiling),
		normalize(s.TotalAppUsage(), c.config.AppUsageCeiling),
	}

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	return clamp01(sum / float64(len(factors)))
}

// ContextScore rates how appropriate the time, place and surroundings are for device use
func (c *MetricCalculator) ContextScore(s *models.TelemetrySample, ambient *models.AmbientData) float64 {
	hour := s.Timestamp.Hour()

	penalty := timeOfDayPenalty(hour) +
		locationPenalty(s.Location, hour) +
		usagePenaltyWeight*normalize(s.ScreenTime, c.config.ScreenTimeCeiling) +
		(1-normalize(ambient.LightIntensity, c.config.LightReference))*lightPenaltyWeight +
		normalize(ambient.NoiseLevel, c.config.NoiseReference)*noisePenaltyWeight +
		c.jitter()

	return clamp01(1 - penalty)
}

// WellnessIndicator averages inverse stress with the activity score
func (c *MetricCalculator) WellnessIndicator(w *models.WearableData) float64 {
	activity, ok := activityScores[w.ActivityLevel]
	if !ok {
		activity = activityScores[models.ActivitySedentary]
	}
	return clamp01(((1 - clamp01(w.StressLevel)) + activity) / 2)
}

func (c *MetricCalculator) jitter() float64 {
	magnitude := c.config.ContextJitter
	if magnitude <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.rng.Float64()*2 - 1) * magnitude
}

func isDeepNight(hour int) bool {
	return hour >= 23 || hour < 6
}

func timeOfDayPenalty(hour int) float64 {
	switch {
	case isDeepNight(hour):
		return deepNightPenalty
	case hour == 21 || hour == 22 || hour == 6:
		return transitionPenalty
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return commutePenalty
	default:
		return 0
	}
}

// locationPenalty applies to location and hour combinations that point to overuse
func locationPenalty(loc models.Location, hour int) float64 {
	switch loc {
	case models.LocationWork:
		if hour >= lateWorkHour || isDeepNight(hour) {
			return lateWorkPenalty
		}
	case models.LocationCommute:
		if isDeepNight(hour) {
			return nightCommutePenalty
		}
	}
	return 0
}

func normalize(value, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return clamp01(value / ceiling)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
