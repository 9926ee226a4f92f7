package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/forecast"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
)

// Orchestrator operation names, used as metric labels.
const (
	opBloom    = "bloom"
	opBatch    = "batch"
	opRegion   = "region"
	opForecast = "forecast"
)

// MinYear is the first year with satellite vegetation coverage.
const MinYear = 2000

// historySuffix marks cached forecast history series.
const historySuffix = "history"

var errPointPanicked = errors.New("internal error computing point")

// Publisher sends finished reports downstream.
type Publisher interface {
	Publish(ctx context.Context, reports ...domain.BloomReport) error
}

// BloomRequest asks for the bloom report of one location and year. A zero
// Year means the current year.
type BloomRequest struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Year         int     `json:"year,omitempty"`
	ForceRefresh bool    `json:"force_refresh,omitempty"`
}

// BatchResult is the outcome of one point of a batch. Exactly one of Report
// and Error is set.
type BatchResult struct {
	Index   int                 `json:"index"`
	Request BloomRequest        `json:"request"`
	Report  *domain.BloomReport `json:"report,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Region is a lat/lon bounding box sampled on a regular grid.
type Region struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
	Step   float64 `json:"step"`
	Year   int     `json:"year,omitempty"`
}

// ForecastRequest asks for a forecast at a location. A zero Months means
// forecast.DefaultMonths.
type ForecastRequest struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Months int     `json:"months,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	Cache     domain.CacheStore
	Provider  *ResilientProvider
	Catalog   *domain.PhenologyCatalog
	Engine    *forecast.Engine
	Publisher Publisher // optional
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger

	RequestTimeout   time.Duration
	BatchConcurrency int
	MaxBatchPoints   int
	HistoryMonths    int
	DefaultLocation  domain.Coordinate
}

// Orchestrator answers bloom and forecast requests, combining the cache, the
// vegetation provider, and the forecast engine.
type Orchestrator struct {
	cache       domain.CacheStore
	provider    *ResilientProvider
	catalog     *domain.PhenologyCatalog
	transformer *BloomTransformer
	engine      *forecast.Engine
	publisher   Publisher
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger

	requestTimeout   time.Duration
	batchConcurrency int
	maxBatchPoints   int
	historyMonths    int
	defaultLocation  domain.Coordinate

	flights singleflight.Group
	recent  atomic.Pointer[domain.Coordinate]
}

// NewOrchestrator creates an Orchestrator. Cache, Provider, Metrics, and
// Logger are required; the rest default.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Engine == nil {
		opts.Engine = forecast.NewEngine()
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 8
	}
	if opts.MaxBatchPoints <= 0 {
		opts.MaxBatchPoints = 100
	}
	if opts.HistoryMonths <= 0 {
		opts.HistoryMonths = 36
	}
	return &Orchestrator{
		cache:            opts.Cache,
		provider:         opts.Provider,
		catalog:          opts.Catalog,
		transformer:      NewTransformer(opts.Provider, opts.Catalog, opts.Logger),
		engine:           opts.Engine,
		publisher:        opts.Publisher,
		clock:            opts.Clock,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		requestTimeout:   opts.RequestTimeout,
		batchConcurrency: opts.BatchConcurrency,
		maxBatchPoints:   opts.MaxBatchPoints,
		historyMonths:    opts.HistoryMonths,
		defaultLocation:  opts.DefaultLocation,
	}
}

// CheckReadiness reports whether the service can answer requests: the
// phenology catalog must be loaded and the cache reachable when it can be
// checked.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if o.catalog.Len() == 0 {
		return errors.New("phenology catalog is empty")
	}
	if rc, ok := o.cache.(interface{ CheckReadiness(context.Context) error }); ok {
		if err := rc.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("cache not ready: %w", err)
		}
	}
	return nil
}

// GetBloom returns the bloom report for a location and year. Fresh cached
// reports are served unless ForceRefresh is set; concurrent requests for the
// same rounded location and year share one computation.
func (o *Orchestrator) GetBloom(ctx context.Context, req BloomRequest) (domain.BloomReport, error) {
	start := o.clock.Now()
	report, err := o.getBloom(ctx, req)
	if err == nil {
		o.remember(req.Lat, req.Lon)
	}
	o.observe(opBloom, start, err)
	return report, err
}

func (o *Orchestrator) getBloom(ctx context.Context, req BloomRequest) (domain.BloomReport, error) {
	now := o.clock.Now()
	req, err := o.normalizeBloom(req, now)
	if err != nil {
		return domain.BloomReport{}, err
	}

	key := reportKey(req)
	if !req.ForceRefresh {
		if report, ok := o.cachedReport(ctx, key, now); ok {
			return report, nil
		}
	}

	v, err, shared := o.flights.Do(key, func() (any, error) {
		// Another flight may have filled the cache since the first check.
		if !req.ForceRefresh {
			if report, ok := o.cachedReport(ctx, key, now); ok {
				return report, nil
			}
		}

		fctx, cancel := o.detach(ctx)
		defer cancel()

		report := o.transformer.Transform(fctx, req, o.clock.Now())
		o.storeJSON(fctx, key, domain.DataNDVI, report)
		o.publish(fctx, report)
		return report, nil
	})
	if shared {
		o.metrics.DedupShared.Inc()
	}
	if err != nil {
		return domain.BloomReport{}, err
	}
	return v.(domain.BloomReport), nil
}

// GetBatch answers every request with bounded concurrency. A failing point is
// reported in its own slot and never fails the batch.
func (o *Orchestrator) GetBatch(ctx context.Context, reqs []BloomRequest) ([]BatchResult, error) {
	start := o.clock.Now()
	results, err := o.getBatch(ctx, reqs)
	o.observe(opBatch, start, err)
	return results, err
}

func (o *Orchestrator) getBatch(ctx context.Context, reqs []BloomRequest) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: batch has no points", domain.ErrInvalidRequest)
	}
	if len(reqs) > o.maxBatchPoints {
		return nil, fmt.Errorf("%w: batch has %d points, limit is %d", domain.ErrInvalidRequest, len(reqs), o.maxBatchPoints)
	}
	o.metrics.BatchSize.Observe(float64(len(reqs)))

	results := make([]BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(o.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = o.batchPoint(ctx, i, req)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// batchPoint answers one batch slot. A panic while computing the point is
// contained to its slot.
func (o *Orchestrator) batchPoint(ctx context.Context, i int, req BloomRequest) (result BatchResult) {
	result = BatchResult{Index: i, Request: req}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("batch point panicked",
				"index", i,
				"lat", req.Lat,
				"lon", req.Lon,
				"panic", fmt.Sprint(r),
			)
			result.Report = nil
			result.Error = errPointPanicked.Error()
		}
	}()

	report, err := o.GetBloom(ctx, req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Report = &report
	return result
}

// GetRegion samples a bounding box on a grid of Step degrees and answers
// every grid point as a batch.
func (o *Orchestrator) GetRegion(ctx context.Context, r Region) ([]BatchResult, error) {
	start := o.clock.Now()
	results, err := o.getRegion(ctx, r)
	o.observe(opRegion, start, err)
	return results, err
}

func (o *Orchestrator) getRegion(ctx context.Context, r Region) ([]BatchResult, error) {
	reqs, err := RegionGrid(r, o.maxBatchPoints)
	if err != nil {
		return nil, err
	}
	return o.getBatch(ctx, reqs)
}

// RegionGrid expands a region into grid-point requests, rejecting regions
// with more than limit points.
func RegionGrid(r Region, limit int) ([]BloomRequest, error) {
	if err := domain.ValidateLocation(r.MinLat, r.MinLon); err != nil {
		return nil, err
	}
	if err := domain.ValidateLocation(r.MaxLat, r.MaxLon); err != nil {
		return nil, err
	}
	if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
		return nil, fmt.Errorf("%w: region minimum exceeds maximum", domain.ErrInvalidRequest)
	}
	if !(r.Step > 0) || math.IsInf(r.Step, 0) {
		return nil, fmt.Errorf("%w: region step must be positive", domain.ErrInvalidRequest)
	}

	// Counted in float64 so tiny steps cannot overflow the point count.
	rowsF := math.Floor((r.MaxLat-r.MinLat)/r.Step+1e-9) + 1
	colsF := math.Floor((r.MaxLon-r.MinLon)/r.Step+1e-9) + 1
	if rowsF*colsF > float64(limit) {
		return nil, fmt.Errorf("%w: region has %.0f points, limit is %d", domain.ErrInvalidRequest, rowsF*colsF, limit)
	}
	rows, cols := int(rowsF), int(colsF)

	reqs := make([]BloomRequest, 0, rows*cols)
	for i := 0; i < rows; i++ {
		lat := roundGrid(r.MinLat + float64(i)*r.Step)
		for j := 0; j < cols; j++ {
			lon := roundGrid(r.MinLon + float64(j)*r.Step)
			reqs = append(reqs, BloomRequest{Lat: lat, Lon: lon, Year: r.Year})
		}
	}
	return reqs, nil
}

// Forecast predicts the vegetation index for the months following now at a
// location.
func (o *Orchestrator) Forecast(ctx context.Context, req ForecastRequest) (domain.Forecast, error) {
	start := o.clock.Now()
	f, err := o.forecast(ctx, req)
	o.observe(opForecast, start, err)
	return f, err
}

// ForecastRecent forecasts at the most recently requested location, or at
// the configured default when nothing has been requested yet.
func (o *Orchestrator) ForecastRecent(ctx context.Context, months int) (domain.Forecast, error) {
	loc := o.defaultLocation
	if recent := o.recent.Load(); recent != nil {
		loc = *recent
	}
	return o.Forecast(ctx, ForecastRequest{Lat: loc.Lat, Lon: loc.Lon, Months: months})
}

func (o *Orchestrator) forecast(ctx context.Context, req ForecastRequest) (domain.Forecast, error) {
	if err := domain.ValidateLocation(req.Lat, req.Lon); err != nil {
		return domain.Forecast{}, err
	}
	if req.Months == 0 {
		req.Months = forecast.DefaultMonths
	}
	if req.Months < 1 || req.Months > forecast.MaxMonths {
		return domain.Forecast{}, fmt.Errorf("%w: months must be between 1 and %d", domain.ErrInvalidRequest, forecast.MaxMonths)
	}
	o.remember(req.Lat, req.Lon)

	now := o.clock.Now()
	history := o.history(ctx, req.Lat, req.Lon, now)

	fitStart := time.Now()
	f := o.engine.Forecast(domain.MonthlySeries(history), now, req.Months)
	o.metrics.ForecastDuration.Observe(time.Since(fitStart).Seconds())

	f.Lat, f.Lon = req.Lat, req.Lon
	if len(history) > 0 {
		f.SourceTag = history[len(history)-1].SourceTag
	}
	return f, nil
}

// history returns the monthly series used for forecasting, cached per
// location.
func (o *Orchestrator) history(ctx context.Context, lat, lon float64, now time.Time) []domain.VegetationObservation {
	key := domain.CacheKey(domain.DataNDVI, lat, lon, historySuffix)
	var cached []domain.VegetationObservation
	if o.cachedJSON(ctx, key, now, &cached) {
		return cached
	}

	v, _, _ := o.flights.Do(key, func() (any, error) {
		fctx, cancel := o.detach(ctx)
		defer cancel()

		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Add(-time.Second)
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(o.historyMonths - 1), 0)
		hist := o.provider.History(fctx, domain.ObservationQuery{Lat: lat, Lon: lon, Start: start, End: end})
		o.storeJSON(fctx, key, domain.DataNDVI, hist)
		return hist, nil
	})
	return v.([]domain.VegetationObservation)
}

// Refresh recomputes cached bloom reports that expire within the window and
// returns how many were refreshed.
func (o *Orchestrator) Refresh(ctx context.Context, within time.Duration) (int, error) {
	entries, err := o.cache.Expiring(ctx, domain.DataNDVI, o.clock.Now(), within)
	if err != nil {
		return 0, fmt.Errorf("list expiring entries: %w", err)
	}

	var (
		refreshed atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(o.batchConcurrency)
	for _, e := range entries {
		var report domain.BloomReport
		if err := json.Unmarshal(e.Data, &report); err != nil || report.ID == "" {
			continue // history series and unreadable entries age out
		}
		req := BloomRequest{Lat: report.Lat, Lon: report.Lon, Year: report.Year, ForceRefresh: true}
		g.Go(func() error {
			if _, err := o.getBloom(ctx, req); err != nil {
				o.logger.Warn("refresh failed", "key", e.Key, "error", err)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(refreshed.Load())
	o.metrics.EntriesRefreshed.Add(float64(n))
	return n, nil
}

// Purge deletes expired cache entries.
func (o *Orchestrator) Purge(ctx context.Context) (int, error) {
	n, err := o.cache.Purge(ctx, o.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	o.metrics.EntriesPurged.Add(float64(n))
	return n, nil
}

func (o *Orchestrator) normalizeBloom(req BloomRequest, now time.Time) (BloomRequest, error) {
	if err := domain.ValidateLocation(req.Lat, req.Lon); err != nil {
		return req, err
	}
	if req.Year == 0 {
		req.Year = now.Year()
	}
	if req.Year < MinYear || req.Year > now.Year() {
		return req, fmt.Errorf("%w: year must be between %d and %d", domain.ErrInvalidRequest, MinYear, now.Year())
	}
	return req, nil
}

func (o *Orchestrator) remember(lat, lon float64) {
	o.recent.Store(&domain.Coordinate{Lat: lat, Lon: lon})
}

// detach bounds shared work by the request timeout instead of the first
// caller's context, so one caller giving up does not fail the others.
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if o.requestTimeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, o.requestTimeout)
}

func (o *Orchestrator) cachedReport(ctx context.Context, key string, now time.Time) (domain.BloomReport, bool) {
	var report domain.BloomReport
	if !o.cachedJSON(ctx, key, now, &report) {
		return domain.BloomReport{}, false
	}
	return report, true
}

// cachedJSON decodes a fresh cache entry into dst. Cache failures are
// logged and treated as misses.
func (o *Orchestrator) cachedJSON(ctx context.Context, key string, now time.Time, dst any) bool {
	entry, ok, err := o.cache.Get(ctx, key, now)
	switch {
	case err != nil:
		o.metrics.CacheLookups.WithLabelValues(string(domain.DataNDVI), "error").Inc()
		o.logger.Warn("cache read failed, computing", "key", key, "error", err)
		return false
	case !ok:
		o.metrics.CacheLookups.WithLabelValues(string(domain.DataNDVI), "miss").Inc()
		return false
	case !entry.Fresh(now):
		o.metrics.CacheLookups.WithLabelValues(string(entry.DataType), "expired").Inc()
		return false
	}
	if err := json.Unmarshal(entry.Data, dst); err != nil {
		o.metrics.CacheLookups.WithLabelValues(string(entry.DataType), "error").Inc()
		o.logger.Warn("cache entry unreadable, computing", "key", key, "error", err)
		return false
	}
	o.metrics.CacheLookups.WithLabelValues(string(entry.DataType), "hit").Inc()
	return true
}

func (o *Orchestrator) storeJSON(ctx context.Context, key string, dataType domain.DataType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		o.metrics.CacheWrites.WithLabelValues(string(dataType), "error").Inc()
		o.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	entry := domain.CacheEntry{Key: key, DataType: dataType, Data: data, Timestamp: o.clock.Now()}
	if err := o.cache.Put(ctx, entry); err != nil {
		o.metrics.CacheWrites.WithLabelValues(string(dataType), "error").Inc()
		o.logger.Warn("cache write failed", "key", key, "error", err)
		return
	}
	o.metrics.CacheWrites.WithLabelValues(string(dataType), "ok").Inc()
}

func (o *Orchestrator) publish(ctx context.Context, report domain.BloomReport) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, report); err != nil {
		o.metrics.PublishErrors.Inc()
		o.logger.Warn("publish bloom report failed", "id", report.ID, "error", err)
		return
	}
	o.metrics.ReportsPublished.Inc()
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrInvalidLocation), errors.Is(err, domain.ErrInvalidRequest):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	o.metrics.Requests.WithLabelValues(op, outcome).Inc()
	o.metrics.RequestDuration.WithLabelValues(op).Observe(o.clock.Since(start).Seconds())
}

func reportKey(req BloomRequest) string {
	return domain.CacheKey(domain.DataNDVI, req.Lat, req.Lon, strconv.Itoa(req.Year))
}

func roundGrid(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
