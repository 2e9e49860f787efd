// Package simulator produces synthetic smartphone, wearable and ambient readings
// for running the pipeline without real devices.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"unplug/models"
)

// Apps tracked by the generated samples
var Apps = []string{"social_media", "messaging", "games", "productivity", "entertainment"}

// Generator creates observations for one entity. It is not safe for concurrent use.
type Generator struct {
	entityID string
	rng      *rand.Rand
	now      func() time.Time
}

// NewGenerator creates a generator whose output is fully determined by seed and the clock
func NewGenerator(entityID string, seed int64) *Generator {
	return &Generator{
		entityID: entityID,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// Next returns one observation stamped with the current time
func (g *Generator) Next() models.Observation {
	return models.Observation{
		EntityID: g.entityID,
		Sample:   g.sample(g.now()),
		Wearable: g.wearable(),
		Ambient:  g.ambient(),
	}
}

func (g *Generator) sample(ts time.Time) models.TelemetrySample {
	usage := make(map[string]float64, len(Apps))
	for _, app := range Apps {
		usage[app] = round(g.exponential(0.5), 3)
	}

	return models.TelemetrySample{
		Timestamp:          ts,
		AppUsage:           usage,
		Location:           models.Locations[g.rng.Intn(len(models.Locations))],
		CommunicationCount: g.poisson(5),
		TouchInteractions:  g.between(50, 500),
		UnlockFrequency:    g.between(10, 100),
		BatteryLevel:       round(g.uniform(20, 100), 1),
		ScreenTime:         round(g.exponential(0.3), 3),
		TypingSpeed:        round(g.uniform(20, 80), 1),
		AmbientLight:       round(g.uniform(0, 1000), 1),
		Accelerometer: [3]float64{
			round(g.uniform(-1, 1), 2),
			round(g.uniform(-1, 1), 2),
			round(g.uniform(-1, 1), 2),
		},
		NetworkUsage: round(g.exponential(100), 2),
	}
}

func (g *Generator) wearable() models.WearableData {
	w := models.WearableData{
		HeartRate:     g.between(60, 100),
		StressLevel:   round(g.rng.Float64(), 3),
		ActivityLevel: models.ActivityLevels[g.rng.Intn(len(models.ActivityLevels))],
	}
	// sleep quality is only reported occasionally
	if g.rng.Float64() < 0.1 {
		q := round(g.rng.Float64(), 3)
		w.SleepQuality = &q
	}
	return w
}

func (g *Generator) ambient() models.AmbientData {
	return models.AmbientData{
		NoiseLevel:     round(g.uniform(30, 80), 1),
		LightIntensity: round(g.uniform(0, 1000), 1),
		Temperature:    round(g.uniform(18, 26), 1),
		Humidity:       round(g.uniform(30, 70), 1),
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// between returns an int in [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) exponential(mean float64) float64 {
	return g.rng.ExpFloat64() * mean
}

// poisson uses Knuth's multiplication method, fine for small means
func (g *Generator) poisson(mean float64) int {
	limit := math.Exp(-mean)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
