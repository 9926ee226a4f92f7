package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
	"github.com/couchcryptid/bloom-forecast/internal/observability"
)

// Fallback reasons, used as metric labels and FallbackReason prefixes.
const (
	reasonDisabled = "disabled"
	reasonTimeout  = "timeout"
	reasonError    = "error"
)

// ResilientProvider serves real vegetation data when it can and synthetic
// data when it cannot. Its methods never return provider errors.
type ResilientProvider struct {
	primary  domain.VegetationIndexProvider
	imagery  domain.ImageryProvider
	fallback *domain.FallbackProvider
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewResilientProvider wraps a real provider with the fallback generator. Pass
// a nil primary to always serve synthetic data, and a nil imagery provider to
// serve reports without overlay URLs. A non-positive timeout leaves calls
// bounded only by the caller's context.
func NewResilientProvider(
	primary domain.VegetationIndexProvider,
	imagery domain.ImageryProvider,
	fallback *domain.FallbackProvider,
	timeout time.Duration,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ResilientProvider {
	if fallback == nil {
		fallback = domain.NewFallbackProvider(nil)
	}
	enabled := 0.0
	if primary != nil {
		enabled = 1
	}
	metrics.ProviderEnabled.Set(enabled)

	return &ResilientProvider{
		primary:  primary,
		imagery:  imagery,
		fallback: fallback,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// Enabled reports whether a real provider is configured.
func (p *ResilientProvider) Enabled() bool {
	return p.primary != nil
}

// Observe returns one observation for the query range.
func (p *ResilientProvider) Observe(ctx context.Context, q domain.ObservationQuery) domain.VegetationObservation {
	if p.primary != nil {
		cctx, cancel := p.bound(ctx)
		obs, err := p.primary.Observe(cctx, q)
		cancel()
		if err == nil {
			return obs
		}
		reason := p.recordFailure("observe", q, err)
		obs, _ = p.fallback.Observe(ctx, q)
		obs.FallbackReason = reason
		return obs
	}

	p.metrics.Fallbacks.WithLabelValues(reasonDisabled).Inc()
	obs, _ := p.fallback.Observe(ctx, q)
	obs.FallbackReason = reasonDisabled
	return obs
}

// History returns monthly observations for the query range, oldest first.
func (p *ResilientProvider) History(ctx context.Context, q domain.ObservationQuery) []domain.VegetationObservation {
	if p.primary != nil {
		cctx, cancel := p.bound(ctx)
		hist, err := p.primary.History(cctx, q)
		cancel()
		if err == nil && len(hist) > 0 {
			return hist
		}
		if err == nil {
			err = domain.ErrUpstreamUnavailable
		}
		reason := p.recordFailure("history", q, err)
		return markFallback(p.fallbackHistory(ctx, q), reason)
	}

	p.metrics.Fallbacks.WithLabelValues(reasonDisabled).Inc()
	return markFallback(p.fallbackHistory(ctx, q), reasonDisabled)
}

// Imagery returns overlay URLs, or an empty value when none are available.
func (p *ResilientProvider) Imagery(ctx context.Context, lat, lon float64, year int) domain.Imagery {
	if p.imagery == nil {
		return domain.Imagery{}
	}
	cctx, cancel := p.bound(ctx)
	defer cancel()
	img, err := p.imagery.Imagery(cctx, lat, lon, year)
	if err != nil {
		p.logger.Warn("imagery unavailable", "lat", lat, "lon", lon, "year", year, "error", err)
		return domain.Imagery{}
	}
	return img
}

func (p *ResilientProvider) fallbackHistory(ctx context.Context, q domain.ObservationQuery) []domain.VegetationObservation {
	hist, _ := p.fallback.History(ctx, q)
	return hist
}

func (p *ResilientProvider) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// recordFailure logs and counts a real-provider failure and returns the
// reason recorded on the substituted observations.
func (p *ResilientProvider) recordFailure(call string, q domain.ObservationQuery, err error) string {
	reason := reasonError
	if errors.Is(err, context.DeadlineExceeded) {
		reason = reasonTimeout
	}
	p.metrics.Fallbacks.WithLabelValues(reason).Inc()
	p.logger.Warn("vegetation provider failed, using fallback",
		"call", call,
		"lat", q.Lat,
		"lon", q.Lon,
		"reason", reason,
		"error", err,
	)
	return reason + ": " + err.Error()
}

func markFallback(obs []domain.VegetationObservation, reason string) []domain.VegetationObservation {
	for i := range obs {
		obs[i].FallbackReason = reason
	}
	return obs
}
