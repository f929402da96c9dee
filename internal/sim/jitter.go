package sim

import (
	"math"
	"math/rand"
	"time"
)

// metersPerDegreeLat is close enough for offsets of a few meters.
const metersPerDegreeLat = 111320.0

// Jitter perturbs emitted coordinates with normally distributed noise so the
// stream does not repeat a recorded track point-for-point. Offsets are drawn
// independently for the east and north axes (mean 0, stddev sigma meters) and
// converted to degree deltas at the point's latitude.
//
// Jitter is not safe for concurrent use; the session only calls it from the
// pacing loop goroutine.
type Jitter struct {
	sigma float64
	rng   *rand.Rand
}

// NewJitter creates a generator with the given sigma in meters. A nil source
// is seeded from the clock; tests pass a fixed-seed source for determinism.
func NewJitter(sigmaMeters float64, src rand.Source) *Jitter {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Jitter{sigma: sigmaMeters, rng: rand.New(src)}
}

// Apply returns the perturbed coordinate. With sigma <= 0 the input is
// returned unchanged.
func (j *Jitter) Apply(lat, lon float64) (float64, float64) {
	if j == nil || j.sigma <= 0 {
		return lat, lon
	}
	north := j.rng.NormFloat64() * j.sigma
	east := j.rng.NormFloat64() * j.sigma

	cosLat := math.Cos(lat * math.Pi / 180)
	if math.Abs(cosLat) < 0.01 {
		// Degenerate east/west scale near the poles.
		cosLat = 0.01
	}
	return lat + north/metersPerDegreeLat, lon + east/(metersPerDegreeLat*cosLat)
}
