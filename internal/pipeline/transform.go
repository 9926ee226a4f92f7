package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

// comparisonMonths is how much history a report is compared against.
const comparisonMonths = 12

// BloomTransformer turns provider data for one location and year into a
// bloom report.
type BloomTransformer struct {
	provider *ResilientProvider
	catalog  *domain.PhenologyCatalog
	logger   *slog.Logger
}

// NewTransformer creates a BloomTransformer. A nil catalog produces reports
// without species context.
func NewTransformer(provider *ResilientProvider, catalog *domain.PhenologyCatalog, logger *slog.Logger) *BloomTransformer {
	return &BloomTransformer{
		provider: provider,
		catalog:  catalog,
		logger:   logger,
	}
}

// Transform fetches the observation, comparison history, and imagery for a
// request concurrently and composes the report.
func (t *BloomTransformer) Transform(ctx context.Context, req BloomRequest, now time.Time) domain.BloomReport {
	q := domain.YearQuery(req.Lat, req.Lon, req.Year, now)

	var (
		obs     domain.VegetationObservation
		history []domain.VegetationObservation
		imagery domain.Imagery
		g       errgroup.Group
	)
	g.Go(func() error {
		obs = t.provider.Observe(ctx, q)
		return nil
	})
	g.Go(func() error {
		history = t.provider.History(ctx, historyQuery(q))
		return nil
	})
	g.Go(func() error {
		imagery = t.provider.Imagery(ctx, req.Lat, req.Lon, req.Year)
		return nil
	})
	_ = g.Wait()

	values := make([]float64, 0, len(history))
	for _, h := range history {
		values = append(values, h.IndexValue)
	}

	report := domain.BuildReport(domain.ReportInput{
		ID:          uuid.NewString(),
		Year:        req.Year,
		Observation: obs,
		Catalog:     t.catalog,
		History:     values,
		Imagery:     imagery,
		Now:         now,
	})
	t.logger.Debug("bloom report built",
		"lat", req.Lat,
		"lon", req.Lon,
		"year", req.Year,
		"level", report.Classification.Level,
		"source", obs.SourceTag,
	)
	return report
}

// historyQuery covers the comparison window ending at the query's end.
func historyQuery(q domain.ObservationQuery) domain.ObservationQuery {
	end := q.End
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(comparisonMonths - 1), 0)
	return domain.ObservationQuery{Lat: q.Lat, Lon: q.Lon, Start: start, End: end}
}
