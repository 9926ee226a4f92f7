package pipeline_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
	"github.com/couchcryptid/bloom-forecast/internal/pipeline"
)

func testQuery() domain.ObservationQuery {
	return domain.YearQuery(48.8566, 2.3522, 2024, testNow)
}

func newProvider(primary domain.VegetationIndexProvider, imagery domain.ImageryProvider, timeout time.Duration) (*pipeline.ResilientProvider, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	p := pipeline.NewResilientProvider(primary, imagery,
		domain.NewFallbackProvider(rand.NewPCG(3, 4)), timeout, metrics, discardLogger())
	return p, metrics
}

func TestResilientProvider_PassesThroughRealData(t *testing.T) {
	p, metrics := newProvider(&mockProvider{index: 0.72}, nil, time.Second)

	obs := p.Observe(context.Background(), testQuery())

	assert.True(t, p.Enabled())
	assert.InDelta(t, 0.72, obs.IndexValue, 1e-9)
	assert.False(t, obs.Synthetic)
	assert.Empty(t, obs.FallbackReason)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ProviderEnabled), 0)
}

func TestResilientProvider_DisabledUsesFallback(t *testing.T) {
	p, metrics := newProvider(nil, nil, time.Second)

	obs := p.Observe(context.Background(), testQuery())

	assert.False(t, p.Enabled())
	assert.True(t, obs.Synthetic)
	assert.Equal(t, domain.SourceFallback, obs.SourceTag)
	assert.Equal(t, "disabled", obs.FallbackReason)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ProviderEnabled), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("disabled")), 0)
}

func TestResilientProvider_ErrorUsesFallback(t *testing.T) {
	p, metrics := newProvider(&mockProvider{err: errors.New("HTTP 502")}, nil, time.Second)

	obs := p.Observe(context.Background(), testQuery())

	assert.True(t, obs.Synthetic)
	assert.Equal(t, "error: HTTP 502", obs.FallbackReason)
	assert.GreaterOrEqual(t, obs.IndexValue, 0.1)
	assert.LessOrEqual(t, obs.IndexValue, 0.9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("error")), 0)
}

func TestResilientProvider_TimeoutUsesFallback(t *testing.T) {
	p, metrics := newProvider(slowProvider{}, nil, 20*time.Millisecond)

	start := time.Now()
	obs := p.Observe(context.Background(), testQuery())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, obs.Synthetic)
	assert.Contains(t, obs.FallbackReason, "timeout")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Fallbacks.WithLabelValues("timeout")), 0)
}

func TestResilientProvider_History(t *testing.T) {
	q := domain.ObservationQuery{
		Lat:   48.8566,
		Lon:   2.3522,
		Start: time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC),
		End:   testNow,
	}

	live, _ := newProvider(&mockProvider{index: 0.5}, nil, time.Second)
	hist := live.History(context.Background(), q)
	require.Len(t, hist, 12)
	assert.False(t, hist[0].Synthetic)

	failing, _ := newProvider(&mockProvider{err: domain.ErrUpstreamUnavailable}, nil, time.Second)
	hist = failing.History(context.Background(), q)
	require.Len(t, hist, 12)
	for _, h := range hist {
		assert.True(t, h.Synthetic)
		assert.Contains(t, h.FallbackReason, "error")
	}
}

func TestResilientProvider_Imagery(t *testing.T) {
	none, _ := newProvider(nil, nil, time.Second)
	assert.Equal(t, domain.Imagery{}, none.Imagery(context.Background(), 1, 2, 2024))

	failing, _ := newProvider(nil, mockImagery{err: errors.New("boom")}, time.Second)
	assert.Equal(t, domain.Imagery{}, failing.Imagery(context.Background(), 1, 2, 2024))

	ok, _ := newProvider(nil, mockImagery{}, time.Second)
	assert.Equal(t, "https://tiles.example/thumb", ok.Imagery(context.Background(), 1, 2, 2024).ThumbnailURL)
}

func TestBloomTransformer_Transform(t *testing.T) {
	p, _ := newProvider(&mockProvider{index: 0.3}, mockImagery{}, time.Second)
	tr := pipeline.NewTransformer(p, domain.DefaultPhenologyCatalog(), discardLogger())
	winter := time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC)

	report := tr.Transform(context.Background(), pipeline.BloomRequest{Lat: 48.8566, Lon: 2.3522, Year: 2024}, winter)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, domain.SeasonWinter, report.Season.Season)
	assert.Equal(t, domain.LevelDormant, report.Classification.Level)
	assert.Equal(t, domain.TrendStable, report.History.Trend)
	assert.Equal(t, "https://tiles.example/ndvi", report.MapURL)
	assert.Equal(t, winter, report.LastUpdated)
}
