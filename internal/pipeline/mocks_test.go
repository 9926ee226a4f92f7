package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/bloom-forecast/internal/adapter/cache"
	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
	"github.com/couchcryptid/bloom-forecast/internal/pipeline"
)

// --- mocks ---

type mockProvider struct {
	index   float64
	err     error
	block   chan struct{} // when set, Observe waits for it to close
	failLat []float64     // latitudes whose Observe and History fail with errUpstream
	observe atomic.Int64
	history atomic.Int64
}

func (m *mockProvider) Observe(ctx context.Context, q domain.ObservationQuery) (domain.VegetationObservation, error) {
	m.observe.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return domain.VegetationObservation{}, ctx.Err()
		}
	}
	if err := m.failure(q.Lat); err != nil {
		return domain.VegetationObservation{}, err
	}
	return domain.VegetationObservation{
		Lat:        q.Lat,
		Lon:        q.Lon,
		IndexValue: m.index,
		Date:       q.End,
		Confidence: 0.95,
		SourceTag:  domain.SourceMODIS,
	}, nil
}

func (m *mockProvider) History(_ context.Context, q domain.ObservationQuery) ([]domain.VegetationObservation, error) {
	m.history.Add(1)
	if err := m.failure(q.Lat); err != nil {
		return nil, err
	}
	var out []domain.VegetationObservation
	for month := time.Date(q.Start.Year(), q.Start.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(q.End); month = month.AddDate(0, 1, 0) {
		out = append(out, domain.VegetationObservation{
			Lat:        q.Lat,
			Lon:        q.Lon,
			IndexValue: m.index,
			Date:       month,
			Confidence: 0.95,
			SourceTag:  domain.SourceMODIS,
		})
	}
	return out, nil
}

var errUpstream = errors.New("upstream rejected point")

func (m *mockProvider) failure(lat float64) error {
	if m.err != nil {
		return m.err
	}
	if slices.Contains(m.failLat, lat) {
		return errUpstream
	}
	return nil
}

type slowProvider struct{}

func (slowProvider) Observe(ctx context.Context, _ domain.ObservationQuery) (domain.VegetationObservation, error) {
	<-ctx.Done()
	return domain.VegetationObservation{}, ctx.Err()
}

func (slowProvider) History(ctx context.Context, _ domain.ObservationQuery) ([]domain.VegetationObservation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type mockImagery struct {
	err error
}

func (m mockImagery) Imagery(_ context.Context, _, _ float64, year int) (domain.Imagery, error) {
	if m.err != nil {
		return domain.Imagery{}, m.err
	}
	return domain.Imagery{TileURL: "https://tiles.example/ndvi", ThumbnailURL: "https://tiles.example/thumb"}, nil
}

type mockPublisher struct {
	mu      sync.Mutex
	reports []domain.BloomReport
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, reports ...domain.BloomReport) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, reports...)
	return nil
}

func (m *mockPublisher) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// panickingPublisher panics when asked to publish a report for panicLat.
type panickingPublisher struct {
	panicLat float64
}

func (p panickingPublisher) Publish(_ context.Context, reports ...domain.BloomReport) error {
	for _, r := range reports {
		if r.Lat == p.panicLat {
			panic("publisher exploded")
		}
	}
	return nil
}

var errCacheDown = errors.New("cache down")

type failingCache struct{}

func (failingCache) Get(context.Context, string, time.Time) (domain.CacheEntry, bool, error) {
	return domain.CacheEntry{}, false, errCacheDown
}

func (failingCache) Put(context.Context, domain.CacheEntry) error { return errCacheDown }

func (failingCache) Purge(context.Context, time.Time) (int, error) { return 0, errCacheDown }

func (failingCache) Expiring(context.Context, domain.DataType, time.Time, time.Duration) ([]domain.CacheEntry, error) {
	return nil, errCacheDown
}

// --- helpers ---

var testNow = time.Date(2024, time.April, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	orch      *pipeline.Orchestrator
	clock     *clockwork.FakeClock
	cache     *cache.MemoryStore
	primary   *mockProvider
	publisher *mockPublisher
	metrics   *observability.Metrics
}

func newHarness(t *testing.T, mutate func(*pipeline.Options)) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()
	primary := &mockProvider{index: 0.9}
	store := cache.NewMemoryStore(0)
	publisher := &mockPublisher{}

	provider := pipeline.NewResilientProvider(primary, mockImagery{},
		domain.NewFallbackProvider(rand.NewPCG(1, 2)), time.Second, metrics, discardLogger())

	opts := pipeline.Options{
		Cache:            store,
		Provider:         provider,
		Catalog:          domain.DefaultPhenologyCatalog(),
		Publisher:        publisher,
		Clock:            clock,
		Metrics:          metrics,
		Logger:           discardLogger(),
		RequestTimeout:   time.Second,
		BatchConcurrency: 4,
		MaxBatchPoints:   10,
		HistoryMonths:    24,
		DefaultLocation:  domain.Coordinate{Lat: 40.7128, Lon: -74.006},
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &harness{
		orch:      pipeline.NewOrchestrator(opts),
		clock:     clock,
		cache:     store,
		primary:   primary,
		publisher: publisher,
		metrics:   metrics,
	}
}
