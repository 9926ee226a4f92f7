// Package storetest holds behavior checks shared by every domain.CacheStore
// implementation.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

var base = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

// Entry builds a cache entry stored at ts.
func Entry(key string, dataType domain.DataType, ts time.Time, payload string) domain.CacheEntry {
	data, _ := json.Marshal(map[string]string{"v": payload})
	return domain.CacheEntry{Key: key, DataType: dataType, Data: data, Timestamp: ts}
}

// Run exercises a store created fresh for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) domain.CacheStore) {
	t.Run("miss", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(context.Background(), "missing", base)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get records access", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, Entry("ndvi_1_2_2024", domain.DataNDVI, base, "a")))

		first, ok, err := s.Get(ctx, "ndvi_1_2_2024", base.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.DataNDVI, first.DataType)
		assert.JSONEq(t, `{"v":"a"}`, string(first.Data))
		assert.True(t, first.Timestamp.Equal(base))
		assert.Equal(t, 1, first.Hits)

		second, ok, err := s.Get(ctx, "ndvi_1_2_2024", base.Add(2*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2, second.Hits)
		assert.True(t, second.LastAccessed.Equal(base.Add(2*time.Minute)))
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, Entry("k", domain.DataNDVI, base, "old")))
		_, _, _ = s.Get(ctx, "k", base)
		require.NoError(t, s.Put(ctx, Entry("k", domain.DataNDVI, base.Add(time.Hour), "new")))

		got, ok, err := s.Get(ctx, "k", base.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"v":"new"}`, string(got.Data))
		assert.True(t, got.Timestamp.Equal(base.Add(time.Hour)))
		assert.Equal(t, 1, got.Hits)
	})

	t.Run("purge removes expired only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, Entry("old-ndvi", domain.DataNDVI, base.Add(-8*24*time.Hour), "x")))
		require.NoError(t, s.Put(ctx, Entry("new-ndvi", domain.DataNDVI, base.Add(-6*24*time.Hour), "y")))
		require.NoError(t, s.Put(ctx, Entry("old-image", domain.DataImages, base.Add(-8*24*time.Hour), "z")))

		n, err := s.Purge(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, ok, _ := s.Get(ctx, "old-ndvi", base)
		assert.False(t, ok)
		_, ok, _ = s.Get(ctx, "new-ndvi", base)
		assert.True(t, ok)
		_, ok, _ = s.Get(ctx, "old-image", base)
		assert.True(t, ok, "images live for 30 days")
	})

	t.Run("expiring lists entries near their ttl", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		day := 24 * time.Hour
		require.NoError(t, s.Put(ctx, Entry("soon", domain.DataNDVI, base.Add(-6*day-12*time.Hour), "a")))
		require.NoError(t, s.Put(ctx, Entry("sooner", domain.DataNDVI, base.Add(-6*day-20*time.Hour), "b")))
		require.NoError(t, s.Put(ctx, Entry("later", domain.DataNDVI, base.Add(-2*day), "c")))
		require.NoError(t, s.Put(ctx, Entry("expired", domain.DataNDVI, base.Add(-8*day), "d")))
		require.NoError(t, s.Put(ctx, Entry("other-type", domain.DataPhenology, base.Add(-14*day+time.Hour), "e")))

		got, err := s.Expiring(ctx, domain.DataNDVI, base, day)
		require.NoError(t, err)

		keys := make([]string, len(got))
		for i, e := range got {
			keys[i] = e.Key
		}
		assert.Equal(t, []string{"sooner", "soon"}, keys)
	})
}
