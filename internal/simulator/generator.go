package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Tilt models one sensor's reported angles: a fixed mounting bias, a slow
// random drift of the structure and per-sample noise.
type Tilt struct {
	BiasX, BiasY float64
	// DriftPerMin bounds the drift step per elapsed minute, in degrees.
	DriftPerMin float64
	Noise       float64
	// MaxDrift clamps the accumulated drift on each axis.
	MaxDrift float64
}

// DefaultTilt is a sensor mounted slightly off level on a stable structure.
var DefaultTilt = Tilt{BiasX: 0.8, BiasY: -0.4, DriftPerMin: 0.05, Noise: 0.02, MaxDrift: 12}

// Generator produces successive readings for a set of sensors.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	tilt   Tilt
	drift  map[int][2]float64
	last   map[int]time.Time
	bursts map[int]float64
}

func NewGenerator(tilt Tilt, seed int64) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		tilt:   tilt,
		drift:  make(map[int][2]float64),
		last:   make(map[int]time.Time),
		bursts: make(map[int]float64),
	}
}

// Shift adds a sudden displacement on the X axis of a sensor, as after an
// impact, so thresholds can be exercised.
func (g *Generator) Shift(sensorID int, deg float64) {
	g.mu.Lock()
	g.bursts[sensorID] += deg
	g.mu.Unlock()
}

// Next returns the angles of sensorID at now, rounded to two decimals.
func (g *Generator) Next(sensorID int, now time.Time) (x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := g.drift[sensorID]
	if prev, ok := g.last[sensorID]; ok {
		if mins := now.Sub(prev).Minutes(); mins > 0 {
			step := g.tilt.DriftPerMin * mins
			d[0] = clamp(d[0]+(g.rng.Float64()*2-1)*step, g.tilt.MaxDrift)
			d[1] = clamp(d[1]+(g.rng.Float64()*2-1)*step, g.tilt.MaxDrift)
		}
	}
	g.drift[sensorID] = d
	g.last[sensorID] = now

	x = g.tilt.BiasX + d[0] + g.bursts[sensorID] + g.rng.NormFloat64()*g.tilt.Noise
	y = g.tilt.BiasY + d[1] + g.rng.NormFloat64()*g.tilt.Noise
	return round2(x), round2(y)
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
