package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/pipeline"
)

// maxBodyBytes bounds batch request bodies.
const maxBodyBytes = 1 << 20

// BloomService answers the bloom and forecast endpoints.
type BloomService interface {
	GetBloom(ctx context.Context, req pipeline.BloomRequest) (domain.BloomReport, error)
	GetBatch(ctx context.Context, reqs []pipeline.BloomRequest) ([]pipeline.BatchResult, error)
	GetRegion(ctx context.Context, r pipeline.Region) ([]pipeline.BatchResult, error)
	Forecast(ctx context.Context, req pipeline.ForecastRequest) (domain.Forecast, error)
	ForecastRecent(ctx context.Context, months int) (domain.Forecast, error)
}

// Server exposes the bloom API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        BloomService
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server. An empty allowedOrigins list allows any
// origin.
func NewServer(addr string, svc BloomService, ready sharedobs.ReadinessChecker, allowedOrigins []string, logger *slog.Logger) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(s.logRequests)
		api.Get("/bloom-map", s.handleBloomMap)
		api.Get("/bloom-forecast", s.handleForecast)
		api.Post("/bloom-batch", s.handleBatch)
		api.Get("/bloom-region", s.handleRegion)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleBloomMap(w http.ResponseWriter, r *http.Request) {
	q := queryParams{r: r}
	req := pipeline.BloomRequest{
		Lat:          q.number("lat", true),
		Lon:          q.number("lon", true),
		Year:         q.integer("year"),
		ForceRefresh: q.flag("refresh"),
	}
	if q.err != nil {
		s.writeError(w, r, q.err)
		return
	}

	report, err := s.svc.GetBloom(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := queryParams{r: r}
	months := q.integer("months")
	hasLat, hasLon := q.has("lat"), q.has("lon")
	if hasLat != hasLon {
		q.fail(fmt.Errorf("%w: lat and lon must be given together", domain.ErrInvalidRequest))
	}
	var lat, lon float64
	if hasLat && hasLon {
		lat, lon = q.number("lat", true), q.number("lon", true)
	}
	if q.err != nil {
		s.writeError(w, r, q.err)
		return
	}

	var (
		f   domain.Forecast
		err error
	)
	if hasLat {
		f, err = s.svc.Forecast(r.Context(), pipeline.ForecastRequest{Lat: lat, Lon: lon, Months: months})
	} else {
		f, err = s.svc.ForecastRecent(r.Context(), months)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type batchPoint struct {
	Lat  *float64 `json:"lat" validate:"required,latitude"`
	Lon  *float64 `json:"lon" validate:"required,longitude"`
	Year int      `json:"year" validate:"omitempty,min=2000"`
}

type batchBody struct {
	Points  []batchPoint `json:"points" validate:"required,min=1,dive"`
	Refresh bool         `json:"refresh"`
}

type batchResponse struct {
	Results []pipeline.BatchResult `json:"results"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed body: %w", domain.ErrInvalidRequest, err))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
		return
	}

	reqs := make([]pipeline.BloomRequest, len(body.Points))
	for i, p := range body.Points {
		reqs[i] = pipeline.BloomRequest{Lat: *p.Lat, Lon: *p.Lon, Year: p.Year, ForceRefresh: body.Refresh}
	}

	results, err := s.svc.GetBatch(r.Context(), reqs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	q := queryParams{r: r}
	region := pipeline.Region{
		MinLat: q.number("min_lat", true),
		MinLon: q.number("min_lon", true),
		MaxLat: q.number("max_lat", true),
		MaxLon: q.number("max_lon", true),
		Step:   q.number("step", true),
		Year:   q.integer("year"),
	}
	if q.err != nil {
		s.writeError(w, r, q.err)
		return
	}

	results, err := s.svc.GetRegion(r.Context(), region)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidLocation), errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

// queryParams parses URL query values, keeping the first error.
type queryParams struct {
	r   *http.Request
	err error
}

func (q *queryParams) has(name string) bool {
	return q.r.URL.Query().Get(name) != ""
}

func (q *queryParams) number(name string, required bool) float64 {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		if required {
			q.fail(fmt.Errorf("%w: missing %s", domain.ErrInvalidRequest, name))
		}
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		q.fail(fmt.Errorf("%w: %s must be a number: %q", domain.ErrInvalidRequest, name, raw))
	}
	return v
}

func (q *queryParams) integer(name string) int {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(fmt.Errorf("%w: %s must be an integer: %q", domain.ErrInvalidRequest, name, raw))
	}
	return v
}

func (q *queryParams) flag(name string) bool {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(fmt.Errorf("%w: %s must be a boolean: %q", domain.ErrInvalidRequest, name, raw))
	}
	return v
}

func (q *queryParams) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}
