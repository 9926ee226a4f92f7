// Package ndvi is the HTTP client for the satellite vegetation-index API.
package ndvi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
)

// ErrNoCoverage is returned when the API has no observations for a point.
var ErrNoCoverage = fmt.Errorf("%w: no observations for location", domain.ErrUpstreamUnavailable)

// DefaultQuality is the confidence assigned to observations without a quality score.
const DefaultQuality = 0.95

const (
	callObserve = "observe"
	callHistory = "history"
	callImagery = "imagery"

	dateLayout = "2006-01-02"
)

// StatusError is a non-200 API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ndvi API error: status %d: %s", e.Code, e.Body)
}

// Client implements domain.VegetationIndexProvider and domain.ImageryProvider.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a vegetation-index API client.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: newBreaker("ndvi-api"),
		metrics: metrics,
		logger:  logger,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
}

// Observe returns the mean index over the query range, dated at the latest
// observation.
func (c *Client) Observe(ctx context.Context, q domain.ObservationQuery) (domain.VegetationObservation, error) {
	q = q.Normalize()
	resp, err := c.fetchPoint(ctx, q, callObserve)
	if err != nil {
		return domain.VegetationObservation{}, err
	}

	values, qualities := make([]float64, 0, len(resp.Observations)), make([]float64, 0, len(resp.Observations))
	var latest time.Time
	for _, o := range resp.Observations {
		values = append(values, resp.index(o))
		qualities = append(qualities, quality(o))
		if d := o.parsedDate(); d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		latest = q.End
	}

	mean, _ := stats.Mean(values)
	conf, _ := stats.Mean(qualities)
	return domain.VegetationObservation{
		Lat:        q.Lat,
		Lon:        q.Lon,
		IndexValue: mean,
		Date:       latest,
		Confidence: conf,
		SourceTag:  resp.sourceTag(),
	}, nil
}

// History returns one observation per calendar month, averaging every
// observation that falls in the month. Months are dated on the 15th.
func (c *Client) History(ctx context.Context, q domain.ObservationQuery) ([]domain.VegetationObservation, error) {
	q = q.Normalize()
	resp, err := c.fetchPoint(ctx, q, callHistory)
	if err != nil {
		return nil, err
	}

	type bucket struct{ values, qualities []float64 }
	buckets := make(map[time.Time]*bucket)
	var months []time.Time
	for _, o := range resp.Observations {
		d := o.parsedDate()
		if d.IsZero() {
			continue
		}
		m := time.Date(d.Year(), d.Month(), 15, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[m]
		if !ok {
			b = &bucket{}
			buckets[m] = b
			months = append(months, m)
		}
		b.values = append(b.values, resp.index(o))
		b.qualities = append(b.qualities, quality(o))
	}
	if len(months) == 0 {
		return nil, ErrNoCoverage
	}
	slices.SortFunc(months, time.Time.Compare)

	out := make([]domain.VegetationObservation, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		mean, _ := stats.Mean(b.values)
		conf, _ := stats.Mean(b.qualities)
		out = append(out, domain.VegetationObservation{
			Lat:        q.Lat,
			Lon:        q.Lon,
			IndexValue: mean,
			Date:       m,
			Confidence: conf,
			SourceTag:  resp.sourceTag(),
		})
	}
	return out, nil
}

// Imagery returns overlay tile and thumbnail URLs for a point and year.
func (c *Client) Imagery(ctx context.Context, lat, lon float64, year int) (domain.Imagery, error) {
	params := url.Values{
		"lat":  {formatCoord(lat)},
		"lon":  {formatCoord(lon)},
		"year": {strconv.Itoa(year)},
	}
	body, err := c.doRequest(ctx, c.baseURL+"/v1/ndvi/imagery?"+params.Encode(), callImagery)
	if err != nil {
		return domain.Imagery{}, err
	}

	var resp imageryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Imagery{}, fmt.Errorf("decode imagery response: %w", err)
	}
	return domain.Imagery{TileURL: resp.TileURL, ThumbnailURL: resp.ThumbnailURL}, nil
}

func (c *Client) fetchPoint(ctx context.Context, q domain.ObservationQuery, call string) (pointResponse, error) {
	params := url.Values{
		"lat":   {formatCoord(q.Lat)},
		"lon":   {formatCoord(q.Lon)},
		"start": {q.Start.Format(dateLayout)},
		"end":   {q.End.Format(dateLayout)},
	}
	body, err := c.doRequest(ctx, c.baseURL+"/v1/ndvi/point?"+params.Encode(), call)
	if err != nil {
		return pointResponse{}, err
	}

	var resp pointResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return pointResponse{}, fmt.Errorf("decode point response: %w", err)
	}
	if len(resp.Observations) == 0 {
		return pointResponse{}, ErrNoCoverage
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, call string) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", call, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
		}
		return io.ReadAll(resp.Body)
	})
	c.metrics.ProviderDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(call, "error").Inc()
		c.logger.Debug("ndvi request failed", "call", call, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	c.metrics.ProviderRequests.WithLabelValues(call, "success").Inc()
	return body, nil
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func quality(o observation) float64 {
	if o.Quality == nil {
		return DefaultQuality
	}
	return clamp(*o.Quality, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// API response types.

type pointResponse struct {
	Source       string        `json:"source"`
	Scale        float64       `json:"scale"`
	Observations []observation `json:"observations"`
}

type observation struct {
	Date    string   `json:"date"`
	NDVI    float64  `json:"ndvi"`
	Quality *float64 `json:"quality"`
}

type imageryResponse struct {
	TileURL      string `json:"tile_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// index applies the response scale factor and clamps to [0, 1].
func (r pointResponse) index(o observation) float64 {
	v := o.NDVI
	if r.Scale != 0 {
		v *= r.Scale
	}
	return clamp(v, 0, 1)
}

func (r pointResponse) sourceTag() string {
	if r.Source == "" {
		return domain.SourceMODIS
	}
	return r.Source
}

func (o observation) parsedDate() time.Time {
	d, err := time.Parse(dateLayout, o.Date)
	if err != nil {
		return time.Time{}
	}
	return d
}
