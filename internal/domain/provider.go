package domain

import (
	"context"
	"time"
)

// ObservationQuery selects the point and date range of a provider request.
// A zero End means "now"; a zero Start means the start of End's year.
type ObservationQuery struct {
	Lat   float64
	Lon   float64
	Start time.Time
	End   time.Time
	// At is the date a single summarizing observation refers to. Zero
	// means End.
	At time.Time
}

// Normalize fills the default date range from the package clock.
func (q ObservationQuery) Normalize() ObservationQuery {
	if q.End.IsZero() {
		q.End = clock.Now()
	}
	if q.Start.IsZero() || q.Start.After(q.End) {
		q.Start = time.Date(q.End.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if q.At.IsZero() || q.At.After(q.End) || q.At.Before(q.Start) {
		q.At = q.End
	}
	return q
}

// YearQuery covers one calendar year, capped at now for the current year.
// At falls on now's calendar date within that year, so a past year is
// observed in the same season as the request.
func YearQuery(lat, lon float64, year int, now time.Time) ObservationQuery {
	now = now.UTC()
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	if end.After(now) {
		end = now
	}
	at := time.Date(year, now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.UTC)
	if at.Month() != now.Month() {
		// Feb 29 in a non-leap year.
		at = time.Date(year, now.Month(), 28, now.Hour(), now.Minute(), now.Second(), 0, time.UTC)
	}
	if at.After(end) {
		at = end
	}
	return ObservationQuery{Lat: lat, Lon: lon, Start: start, End: end, At: at}
}

// VegetationIndexProvider produces vegetation-index observations for a point.
type VegetationIndexProvider interface {
	// Observe returns one observation summarizing the query range.
	Observe(ctx context.Context, q ObservationQuery) (VegetationObservation, error)
	// History returns one observation per month in the query range, oldest first.
	History(ctx context.Context, q ObservationQuery) ([]VegetationObservation, error)
}

// ImageryProvider returns overlay imagery for a point and year.
type ImageryProvider interface {
	Imagery(ctx context.Context, lat, lon float64, year int) (Imagery, error)
}

// MonthlySeries converts observations into forecast input.
func MonthlySeries(obs []VegetationObservation) []MonthlyValue {
	out := make([]MonthlyValue, 0, len(obs))
	for _, o := range obs {
		out = append(out, MonthlyValue{Month: o.Date, Value: o.IndexValue})
	}
	return out
}
