package domain

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DataType selects the TTL of a cache entry.
type DataType string

const (
	DataNDVI      DataType = "ndvi"
	DataPhenology DataType = "phenology"
	DataImages    DataType = "images"
	DataLocation  DataType = "location"
)

var cacheTTLs = map[DataType]time.Duration{
	DataNDVI:      7 * 24 * time.Hour,
	DataPhenology: 14 * 24 * time.Hour,
	DataImages:    30 * 24 * time.Hour,
	DataLocation:  90 * 24 * time.Hour,
}

// TTL returns the time-to-live for a data type. Unknown types never stay fresh.
func (d DataType) TTL() time.Duration {
	return cacheTTLs[d]
}

// CacheEntry is a stored value with its access bookkeeping.
type CacheEntry struct {
	Key          string          `json:"key"`
	DataType     DataType        `json:"dataType"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	Hits         int             `json:"hits"`
	LastAccessed time.Time       `json:"lastAccessed"`
}

// ExpiresAt is the instant the entry stops being fresh.
func (e CacheEntry) ExpiresAt() time.Time {
	return e.Timestamp.Add(e.DataType.TTL())
}

// Fresh reports whether the entry is still within its TTL at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// CacheStore persists cache entries. Implementations record hits and last
// access on Get; freshness is judged by the caller against its own clock.
type CacheStore interface {
	Get(ctx context.Context, key string, now time.Time) (CacheEntry, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
	// Purge deletes entries that are no longer fresh at now.
	Purge(ctx context.Context, now time.Time) (int, error)
	// Expiring lists fresh entries of a type whose TTL ends within the window.
	Expiring(ctx context.Context, dataType DataType, now time.Time, within time.Duration) ([]CacheEntry, error)
}

// CacheKey builds "<type>_<lat>_<lon>[_<suffix>]" with coordinates rounded to
// three decimals.
func CacheKey(dataType DataType, lat, lon float64, suffix string) string {
	key := string(dataType) + "_" + formatCoord(lat) + "_" + formatCoord(lon)
	if suffix != "" {
		key += "_" + suffix
	}
	return key
}

// RoundCoord rounds a coordinate to the three decimals used for cache and
// dedup keys.
func RoundCoord(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func formatCoord(v float64) string {
	r := RoundCoord(v)
	if r == 0 {
		r = 0 // normalizes -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
