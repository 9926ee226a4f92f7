package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/bloom-forecast/internal/adapter/http"
	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockService struct {
	mu         sync.Mutex
	err        error
	bloom      []pipeline.BloomRequest
	batch      [][]pipeline.BloomRequest
	region     []pipeline.Region
	forecast   []pipeline.ForecastRequest
	recentArgs []int
}

func (m *mockService) GetBloom(_ context.Context, req pipeline.BloomRequest) (domain.BloomReport, error) {
	m.mu.Lock()
	m.bloom = append(m.bloom, req)
	m.mu.Unlock()
	if m.err != nil {
		return domain.BloomReport{}, m.err
	}
	if err := domain.ValidateLocation(req.Lat, req.Lon); err != nil {
		return domain.BloomReport{}, err
	}
	return domain.BloomReport{ID: "r-1", Lat: req.Lat, Lon: req.Lon, Year: req.Year}, nil
}

func (m *mockService) GetBatch(_ context.Context, reqs []pipeline.BloomRequest) ([]pipeline.BatchResult, error) {
	m.mu.Lock()
	m.batch = append(m.batch, reqs)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]pipeline.BatchResult, len(reqs))
	for i, r := range reqs {
		out[i] = pipeline.BatchResult{Index: i, Request: r, Report: &domain.BloomReport{ID: fmt.Sprintf("r-%d", i)}}
	}
	return out, nil
}

func (m *mockService) GetRegion(_ context.Context, r pipeline.Region) ([]pipeline.BatchResult, error) {
	m.mu.Lock()
	m.region = append(m.region, r)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	reqs, err := pipeline.RegionGrid(r, 100)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.BatchResult, len(reqs))
	for i, req := range reqs {
		out[i] = pipeline.BatchResult{Index: i, Request: req}
	}
	return out, nil
}

func (m *mockService) Forecast(_ context.Context, req pipeline.ForecastRequest) (domain.Forecast, error) {
	m.mu.Lock()
	m.forecast = append(m.forecast, req)
	m.mu.Unlock()
	return domain.Forecast{Lat: req.Lat, Lon: req.Lon, Points: []domain.ForecastPoint{{Month: "2024-05"}}}, m.err
}

func (m *mockService) ForecastRecent(_ context.Context, months int) (domain.Forecast, error) {
	m.mu.Lock()
	m.recentArgs = append(m.recentArgs, months)
	m.mu.Unlock()
	return domain.Forecast{Points: []domain.ForecastPoint{}}, m.err
}

func newTestServer(svc *mockService, readyErr error) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", svc, &mockReadiness{err: readyErr}, nil, logger)
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestServer(&mockService{}, errors.New("catalog not loaded")), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBloomMap(t *testing.T) {
	svc := &mockService{}
	rec := do(t, newTestServer(svc, nil), http.MethodGet, "/bloom-map?lat=35.68&lon=139.69&year=2023&refresh=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	report := decode[domain.BloomReport](t, rec)
	assert.Equal(t, "r-1", report.ID)

	require.Len(t, svc.bloom, 1)
	assert.Equal(t, pipeline.BloomRequest{Lat: 35.68, Lon: 139.69, Year: 2023, ForceRefresh: true}, svc.bloom[0])
}

func TestBloomMap_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing lat", "/bloom-map?lon=1", "missing lat"},
		{"non-numeric lon", "/bloom-map?lat=1&lon=east", "lon must be a number"},
		{"bad year", "/bloom-map?lat=1&lon=1&year=last", "year must be an integer"},
		{"bad refresh", "/bloom-map?lat=1&lon=1&refresh=maybe", "refresh must be a boolean"},
		{"out of range", "/bloom-map?lat=91&lon=1", "invalid location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[map[string]string](t, rec)
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestBloomMap_ServiceFailure(t *testing.T) {
	rec := do(t, newTestServer(&mockService{err: errors.New("boom")}, nil), http.MethodGet, "/bloom-map?lat=1&lon=1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, newTestServer(&mockService{err: context.DeadlineExceeded}, nil), http.MethodGet, "/bloom-map?lat=1&lon=1", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestBloomForecast(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc, nil)

	rec := do(t, srv, http.MethodGet, "/bloom-forecast?months=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3}, svc.recentArgs)
	body := decode[map[string]any](t, rec)
	assert.Contains(t, body, "forecast")

	rec = do(t, srv, http.MethodGet, "/bloom-forecast?lat=-33.87&lon=151.21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.forecast, 1)
	assert.Equal(t, pipeline.ForecastRequest{Lat: -33.87, Lon: 151.21}, svc.forecast[0])

	rec = do(t, srv, http.MethodGet, "/bloom-forecast?lat=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newTestServer(&mockService{err: domain.ErrInvalidRequest}, nil), http.MethodGet, "/bloom-forecast?months=40", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBloomBatch(t *testing.T) {
	svc := &mockService{}
	body := `{"points":[{"lat":35.68,"lon":139.69},{"lat":-33.87,"lon":151.21,"year":2022}],"refresh":true}`

	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/bloom-batch", body)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Results []pipeline.BatchResult `json:"results"`
	}](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "r-1", resp.Results[1].Report.ID)

	require.Len(t, svc.batch, 1)
	assert.Equal(t, []pipeline.BloomRequest{
		{Lat: 35.68, Lon: 139.69, ForceRefresh: true},
		{Lat: -33.87, Lon: 151.21, Year: 2022, ForceRefresh: true},
	}, svc.batch[0])
}

func TestBloomBatch_RejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"points":[`},
		{"no points", `{"points":[]}`},
		{"missing lon", `{"points":[{"lat":1}]}`},
		{"latitude out of range", `{"points":[{"lat":95,"lon":1}]}`},
		{"year before coverage", `{"points":[{"lat":1,"lon":1,"year":1990}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			rec := do(t, newTestServer(svc, nil), http.MethodPost, "/bloom-batch", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.batch)
		})
	}
}

func TestBloomRegion(t *testing.T) {
	svc := &mockService{}
	rec := do(t, newTestServer(svc, nil), http.MethodGet,
		"/bloom-region?min_lat=10&min_lon=20&max_lat=11&max_lon=21&step=0.5&year=2023", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.region, 1)
	assert.Equal(t, pipeline.Region{MinLat: 10, MinLon: 20, MaxLat: 11, MaxLon: 21, Step: 0.5, Year: 2023}, svc.region[0])

	rec = do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/bloom-region?min_lat=10&min_lon=20&max_lat=11", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBloomRegion_RejectsOversizedGrid(t *testing.T) {
	srv := newTestServer(&mockService{}, nil)

	for _, step := range []string{"0.001", "2.3283064370807974e-10"} {
		rec := do(t, srv, http.MethodGet,
			"/bloom-region?min_lat=0&min_lon=0&max_lat=1&max_lon=1&step="+step, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "step %s", step)
		assert.Contains(t, rec.Body.String(), "limit is 100")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&mockService{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/bloom-map", nil)
	req.Header.Set("Origin", "https://maps.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/ask", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
