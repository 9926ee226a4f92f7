package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("fallback used", "reason", "timeout")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fallback used", line["msg"])
	assert.Equal(t, "timeout", line["reason"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "text").Debug("cache miss", "key", "ndvi_1_2_2024")

	assert.Contains(t, buf.String(), "msg=\"cache miss\"")
	assert.Contains(t, buf.String(), "key=ndvi_1_2_2024")
}

func TestMetrics_RegisterCustomRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.Fallbacks.WithLabelValues("timeout").Inc()
	m.CacheLookups.WithLabelValues("ndvi", "hit").Add(2)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Fallbacks.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheLookups.WithLabelValues("ndvi", "hit")), 0)

	n, err := testutil.GatherAndCount(reg, "bloom_fallback_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, m.Register(reg), "double registration is rejected")
}
