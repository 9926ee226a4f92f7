package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessDataQuality(t *testing.T) {
	tests := []struct {
		name      string
		obs       VegetationObservation
		species   bool
		phenology bool
		score     int
		level     QualityLevel
	}{
		{
			name:  "real with full context",
			obs:   VegetationObservation{Confidence: 0.95, SourceTag: SourceMODIS},
			score: 98, level: QualityExcellent, species: true, phenology: true,
		},
		{
			name:  "synthetic with full context",
			obs:   VegetationObservation{Confidence: FallbackConfidence, SourceTag: SourceFallback, Synthetic: true},
			score: 74, level: QualityGood, species: true, phenology: true,
		},
		{
			name:  "synthetic without phenology",
			obs:   VegetationObservation{Confidence: FallbackConfidence, SourceTag: SourceFallback, Synthetic: true},
			score: 34, level: QualityLimited,
		},
		{
			name:  "real without phenology",
			obs:   VegetationObservation{Confidence: 0.9, SourceTag: SourceMODIS},
			score: 56, level: QualityFair,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := AssessDataQuality(tt.obs, tt.species, tt.phenology)
			assert.Equal(t, tt.score, q.Score)
			assert.Equal(t, tt.level, q.Level)
			assert.Equal(t, tt.obs.SourceTag, q.Source)
			assert.Equal(t, tt.obs.Synthetic, q.Synthetic)
		})
	}
}

func TestCompareHistory_Empty(t *testing.T) {
	h := CompareHistory(0.5, nil)
	assert.Equal(t, TrendUnknown, h.Trend)
	assert.Nil(t, h.Percentile)
	assert.Zero(t, h.Samples)
}

func TestCompareHistory_Trend(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		trend   Trend
	}{
		{"rising", []float64{0.1, 0.2, 0.4, 0.5, 0.6}, TrendIncreasing},
		{"falling", []float64{0.9, 0.6, 0.5}, TrendDecreasing},
		{"flat within ten percent", []float64{0.50, 0.52, 0.54}, TrendStable},
		{"single point", []float64{0.4}, TrendStable},
		{"from zero", []float64{0, 0.1}, TrendIncreasing},
		{"zero to zero", []float64{0, 0}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.trend, CompareHistory(0.5, tt.history).Trend)
		})
	}
}

func TestCompareHistory_Percentile(t *testing.T) {
	history := []float64{0.2, 0.4, 0.6, 0.8}

	tests := []struct {
		current float64
		want    float64
	}{
		{0.1, 0},
		{0.5, 50},
		{0.9, 100},
		{0.4, 37.5},
	}
	for _, tt := range tests {
		h := CompareHistory(tt.current, history)
		require.NotNil(t, h.Percentile)
		assert.InDelta(t, tt.want, *h.Percentile, 1e-9, "current %v", tt.current)
		assert.Equal(t, len(history), h.Samples)
	}

	allEqual := CompareHistory(0.3, []float64{0.3, 0.3, 0.3})
	require.NotNil(t, allEqual.Percentile)
	assert.InDelta(t, 50, *allEqual.Percentile, 1e-9)
}

func TestCompareHistory_DoesNotReorderInput(t *testing.T) {
	history := []float64{0.8, 0.2, 0.5}
	CompareHistory(0.5, history)
	assert.Equal(t, []float64{0.8, 0.2, 0.5}, history)
}
