package window

import (
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// DailyAccumulator groups scalar contributions by calendar date of their own timestamp.
// It is owned by a single entity and relies on the owner's lock.
type DailyAccumulator struct {
	days map[string][]float64
}

func NewDailyAccumulator() *DailyAccumulator {
	return &DailyAccumulator{days: make(map[string][]float64)}
}

// DateKey formats ts as the accumulator's day key.
func DateKey(ts time.Time) string {
	return ts.Format(dateLayout)
}

func (d *DailyAccumulator) Add(ts time.Time, value float64) {
	key := DateKey(ts)
	d.days[key] = append(d.days[key], value)
}

// Sum returns the total recorded for the day containing ts.
func (d *DailyAccumulator) Sum(ts time.Time) float64 {
	sum := 0.0
	for _, v := range d.days[DateKey(ts)] {
		sum += v
	}
	return sum
}

// Values returns a copy of the contributions for the day containing ts, in insertion order.
func (d *DailyAccumulator) Values(ts time.Time) []float64 {
	values := d.days[DateKey(ts)]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Days returns the recorded day keys in ascending order.
func (d *DailyAccumulator) Days() []string {
	keys := make([]string, 0, len(d.days))
	for k := range d.days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DailyAccumulator) Reset() {
	d.days = make(map[string][]float64)
}
