package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/bloom-forecast/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// CacheMaintainer is the cache upkeep the refresher drives.
type CacheMaintainer interface {
	Purge(ctx context.Context) (int, error)
	Refresh(ctx context.Context, within time.Duration) (int, error)
}

// Refresher periodically purges expired cache entries and recomputes reports
// that are about to expire.
type Refresher struct {
	target   CacheMaintainer
	interval time.Duration
	window   time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	ready    atomic.Bool
}

// NewRefresher creates a Refresher that runs every interval and refreshes
// entries expiring within window.
func NewRefresher(target CacheMaintainer, interval, window time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{
		target:   target,
		interval: interval,
		window:   window,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckReadiness returns nil once the first maintenance pass has completed.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("cache refresher has not completed a pass yet")
	}
	return nil
}

// Run executes maintenance passes until the context is cancelled. A failed
// pass is retried with exponential backoff before waiting for the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("cache refresher started", "interval", r.interval, "window", r.window)
	r.metrics.RefresherRunning.Set(1)
	defer r.metrics.RefresherRunning.Set(0)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	backoff := initialBackoff
	for {
		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("cache refresher stopping", "reason", ctx.Err())
				return nil
			}
			r.logger.Error("cache maintenance failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, r.clock, backoff) {
				r.logger.Info("cache refresher stopping", "reason", ctx.Err())
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		select {
		case <-ctx.Done():
			r.logger.Info("cache refresher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce purges expired entries, then refreshes those expiring soon.
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := r.clock.Now()

	purged, purgeErr := r.target.Purge(ctx)
	refreshed, refreshErr := r.target.Refresh(ctx, r.window)
	if err := errors.Join(purgeErr, refreshErr); err != nil {
		r.metrics.RefreshRuns.WithLabelValues("error").Inc()
		return err
	}

	r.metrics.RefreshRuns.WithLabelValues("ok").Inc()
	r.ready.Store(true)
	r.logger.Info("cache maintenance complete",
		"purged", purged,
		"refreshed", refreshed,
		"duration", r.clock.Since(start),
	)
	return nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
