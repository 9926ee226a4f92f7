// Package forecast predicts monthly vegetation-index values from a location's
// observed history.
package forecast

import (
	"math"
	"slices"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

// Forecast methods reported on the result.
const (
	MethodNone     = "none"
	MethodFlat     = "flat"
	MethodTrend    = "linear-trend"
	MethodSeasonal = "additive-seasonal"
)

const (
	// DefaultMonths is the horizon used when a caller asks for zero months.
	DefaultMonths = 6
	// MaxMonths bounds the horizon.
	MaxMonths = 24

	// z is the two-sided 95% normal quantile.
	z = 1.96
	// seasonalSpan is the minimum history length, in months, for seasonal indices.
	seasonalSpan = 12
	// sigmaFloor keeps the band open when the history is not perfectly constant.
	sigmaFloor = 1e-3
	// flatBand is the per-√month half-width of a low-confidence forecast.
	flatBand = 0.1
	// maxBackfit caps the trend/seasonal refit passes.
	maxBackfit = 50
)

// Engine fits an additive trend-plus-seasonal model and extrapolates it.
// It is stateless and safe for concurrent use.
type Engine struct{}

// NewEngine creates a forecast engine.
func NewEngine() *Engine {
	return &Engine{}
}

// monthPoint is one distinct month of aggregated history.
type monthPoint struct {
	index int // months since year 0
	value float64
}

// model is a fitted additive decomposition.
type model struct {
	origin    int
	intercept float64
	slope     float64
	seasonal  [12]float64
	sigma     float64
	method    string
}

// Forecast predicts the given number of months following now's month. The
// series may be unordered, have gaps, or repeat months; repeats are averaged.
// An empty series yields an empty forecast rather than an error.
func (e *Engine) Forecast(series []domain.MonthlyValue, now time.Time, months int) domain.Forecast {
	if months <= 0 {
		months = DefaultMonths
	}
	months = min(months, MaxMonths)

	points := aggregate(series)
	out := domain.Forecast{
		Points:       []domain.ForecastPoint{},
		Observations: len(points),
		GeneratedAt:  now.UTC().Truncate(time.Second),
	}

	if len(points) == 0 {
		out.Method = MethodNone
		out.LowConfidence = true
		return out
	}

	last := points[len(points)-1]
	var m model
	if len(points) < 2 {
		m = model{origin: last.index, intercept: last.value, sigma: flatBand / z, method: MethodFlat}
		out.LowConfidence = true
	} else {
		m = fit(points)
	}
	out.Method = m.method
	out.ResidualStdDev = m.sigma

	base := monthIndex(now)
	for k := 1; k <= months; k++ {
		target := base + k
		h := max(1, target-last.index)
		// The band is centred on the clamped estimate so it keeps its
		// width when the trend runs past the unit interval.
		central := clamp01(m.predict(target))
		band := z * m.sigma * math.Sqrt(float64(h))

		month := fromIndex(target)
		out.Points = append(out.Points, domain.ForecastPoint{
			TargetMonth:    month,
			Month:          month.Format("2006-01"),
			MonthName:      month.Format("January"),
			Offset:         k,
			PredictedIndex: round3(central),
			LowerBound:     round3(clamp01(central - band)),
			UpperBound:     round3(clamp01(central + band)),
		})
	}
	return out
}

func (m model) predict(index int) float64 {
	t := float64(index - m.origin)
	return m.intercept + m.slope*t + m.seasonal[calendarMonth(index)]
}

// fit estimates an OLS trend, then seasonal indices from the detrended
// residuals when the history covers at least a year. Trend and seasonal terms
// are refit alternately until the slope settles, so a seasonal cycle does not
// leak into the trend.
func fit(points []monthPoint) model {
	origin := points[0].index
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.index - origin)
		ys[i] = p.value
	}

	m := model{origin: origin, method: MethodTrend}
	seasonal := points[len(points)-1].index-origin+1 >= seasonalSpan
	detrended := make([]float64, len(points))
	adjusted := make([]float64, len(points))
	estimated := 0

	for iter := 0; iter < maxBackfit; iter++ {
		for i, p := range points {
			adjusted[i] = ys[i] - m.seasonal[calendarMonth(p.index)]
		}
		prev := m.slope
		m.intercept, m.slope = ols(xs, adjusted)
		for i := range points {
			detrended[i] = ys[i] - (m.intercept + m.slope*xs[i])
		}
		if !seasonal {
			break
		}
		estimated = seasonalIndices(points, detrended, &m.seasonal)
		if iter > 0 && math.Abs(m.slope-prev) < 1e-12 {
			break
		}
	}

	params := 2
	if estimated > 1 {
		params += estimated - 1
		m.method = MethodSeasonal
	} else {
		m.seasonal = [12]float64{}
	}

	residuals := make([]float64, len(points))
	for i, p := range points {
		residuals[i] = detrended[i] - m.seasonal[calendarMonth(p.index)]
	}

	if dof := len(points) - params; dof >= 1 {
		var ss float64
		for _, r := range residuals {
			ss += r * r
		}
		m.sigma = math.Sqrt(ss / float64(dof))
	} else {
		m.sigma, _ = stats.StandardDeviationSample(detrended)
	}

	if variance, _ := stats.Variance(ys); variance > 0 && m.sigma < sigmaFloor {
		m.sigma = sigmaFloor
	}
	return m
}

// ols returns the least-squares intercept and slope of ys on xs.
func ols(xs, ys []float64) (intercept, slope float64) {
	meanX, _ := stats.Mean(xs)
	meanY, _ := stats.Mean(ys)
	cov, _ := stats.Covariance(xs, ys)
	varX, _ := stats.SampleVariance(xs)
	if varX > 0 {
		slope = cov / varX
	}
	return meanY - slope*meanX, slope
}

// seasonalIndices fills idx with the centred mean residual of each calendar
// month that has data and returns how many months were estimated.
func seasonalIndices(points []monthPoint, detrended []float64, idx *[12]float64) int {
	var byMonth [12][]float64
	for i, p := range points {
		cm := calendarMonth(p.index)
		byMonth[cm] = append(byMonth[cm], detrended[i])
	}

	var present []float64
	for cm, vals := range byMonth {
		if len(vals) == 0 {
			continue
		}
		idx[cm], _ = stats.Mean(vals)
		present = append(present, idx[cm])
	}
	if len(present) == 0 {
		return 0
	}

	centre, _ := stats.Mean(present)
	for cm, vals := range byMonth {
		if len(vals) > 0 {
			idx[cm] -= centre
		}
	}
	return len(present)
}

// aggregate averages duplicate months and orders the result chronologically.
// Non-finite values are dropped.
func aggregate(series []domain.MonthlyValue) []monthPoint {
	sums := make(map[int][]float64)
	for _, v := range series {
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			continue
		}
		i := monthIndex(v.Month)
		sums[i] = append(sums[i], v.Value)
	}

	out := make([]monthPoint, 0, len(sums))
	for i, vals := range sums {
		mean, _ := stats.Mean(vals)
		out = append(out, monthPoint{index: i, value: mean})
	}
	slices.SortFunc(out, func(a, b monthPoint) int { return a.index - b.index })
	return out
}

func monthIndex(t time.Time) int {
	t = t.UTC()
	return t.Year()*12 + int(t.Month()) - 1
}

func fromIndex(i int) time.Time {
	return time.Date(i/12, time.Month(i%12+1), 1, 0, 0, 0, 0, time.UTC)
}

func calendarMonth(index int) int {
	return index % 12
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	r, _ := stats.Round(v, 3)
	return r
}
