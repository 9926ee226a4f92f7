package domain

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Fallback generator parameters.
const (
	FallbackConfidence = 0.6
	fallbackNoise      = 0.1
	fallbackMin        = 0.1
	fallbackMax        = 0.9
)

// fallbackBaselines are per-hemisphere seasonal index baselines. The southern
// table is deliberately not a mirror of the northern one.
var fallbackBaselines = map[Hemisphere]map[Season]float64{
	HemisphereNorth: {
		SeasonWinter: 0.25,
		SeasonSpring: 0.50,
		SeasonSummer: 0.70,
		SeasonAutumn: 0.60,
	},
	HemisphereSouth: {
		SeasonWinter: 0.30,
		SeasonSpring: 0.55,
		SeasonSummer: 0.65,
		SeasonAutumn: 0.50,
	},
}

// FallbackBaseline returns the noise-free synthetic index for a point and date.
func FallbackBaseline(lat float64, date time.Time) float64 {
	sc := ResolveSeason(lat, date)
	return fallbackBaselines[sc.Hemisphere][sc.Season]
}

// FallbackProvider synthesizes plausible observations when no real source is
// available. Values are seasonal baselines plus bounded uniform noise.
type FallbackProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackProvider creates a generator. A nil source seeds from the
// runtime's random state.
func NewFallbackProvider(src rand.Source) *FallbackProvider {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &FallbackProvider{rng: rand.New(src)}
}

// Observe synthesizes one observation dated at the query's At.
func (p *FallbackProvider) Observe(_ context.Context, q ObservationQuery) (VegetationObservation, error) {
	q = q.Normalize()
	return p.synthesize(q.Lat, q.Lon, q.At), nil
}

// History synthesizes one observation per month from Start to End, dated on
// the 15th of each month.
func (p *FallbackProvider) History(_ context.Context, q ObservationQuery) ([]VegetationObservation, error) {
	q = q.Normalize()
	month := time.Date(q.Start.Year(), q.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(q.End.Year(), q.End.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out []VegetationObservation
	for !month.After(last) {
		out = append(out, p.synthesize(q.Lat, q.Lon, month.AddDate(0, 0, 14)))
		month = month.AddDate(0, 1, 0)
	}
	return out, nil
}

func (p *FallbackProvider) synthesize(lat, lon float64, date time.Time) VegetationObservation {
	p.mu.Lock()
	noise := (p.rng.Float64()*2 - 1) * fallbackNoise
	p.mu.Unlock()

	return VegetationObservation{
		Lat:        lat,
		Lon:        lon,
		IndexValue: roundTo(clamp(FallbackBaseline(lat, date)+noise, fallbackMin, fallbackMax), 3),
		Date:       date,
		Confidence: FallbackConfidence,
		SourceTag:  SourceFallback,
		Synthetic:  true,
	}
}
