package telemetry

import (
	"math/rand"
	"sync"
	"time"
)

// Generator simulates readings for aircraft environment sensors.
type Generator struct {
	ranges Ranges
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a generator drawing from the given ranges.
// A zero seed seeds from the current time.
func NewGenerator(ranges Ranges, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		ranges: ranges,
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// Generate returns one synthetic reading for sensorID.
func (g *Generator) Generate(sensorID string) Reading {
	g.mu.Lock()
	temp := uniform(g.rnd, g.ranges.Temperature)
	hum := uniform(g.rnd, g.ranges.Humidity)
	aq := uniform(g.rnd, g.ranges.AirQuality)
	g.mu.Unlock()

	return Reading{
		SensorID:    sensorID,
		Temperature: temp,
		Humidity:    hum,
		AirQuality:  aq,
		Timestamp:   g.now().UTC(),
	}
}

// uniform draws from [r.Min, r.Max].
func uniform(rnd *rand.Rand, r Range) float64 {
	return r.Min + rnd.Float64()*(r.Max-r.Min)
}
