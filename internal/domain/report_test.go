package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReport_RealObservation(t *testing.T) {
	obs := VegetationObservation{
		Lat:        35.68,
		Lon:        139.69,
		IndexValue: 0.9123,
		Date:       date(2024, time.April, 8),
		Confidence: 0.95,
		SourceTag:  SourceMODIS,
	}
	now := time.Date(2024, time.April, 9, 10, 11, 12, 999, time.UTC)

	r := BuildReport(ReportInput{
		ID:          "r-1",
		Year:        2024,
		Observation: obs,
		Catalog:     DefaultPhenologyCatalog(),
		History:     []float64{0.5, 0.6, 0.8},
		Imagery:     Imagery{TileURL: "https://tiles/x", ThumbnailURL: "https://thumb/x"},
		Now:         now,
	})

	assert.Equal(t, "r-1", r.ID)
	assert.Equal(t, 2024, r.Year)
	assert.InDelta(t, 0.912, r.NDVIIndex, 1e-9)
	assert.Equal(t, SeasonSpring, r.Season.Season)
	assert.Equal(t, LevelPeakBloom, r.Classification.Level)
	assert.Equal(t, "Cherry Blossom", r.PrimarySpecies)
	require.NotNil(t, r.PhenologyIndex)
	assert.Equal(t, QualityExcellent, r.DataQuality.Level)
	assert.Equal(t, TrendIncreasing, r.History.Trend)
	require.NotNil(t, r.History.Percentile)
	assert.InDelta(t, 100, *r.History.Percentile, 1e-9)
	assert.Equal(t, Timeline{Start: "March", Peak: "April", End: "May"}, r.Timeline)
	assert.Equal(t, "https://tiles/x", r.MapURL)
	assert.Equal(t, now.Truncate(time.Second), r.LastUpdated)
}

func TestBuildReport_NoCatalogDegrades(t *testing.T) {
	obs := VegetationObservation{
		Lat:        45,
		Lon:        7,
		IndexValue: 0.6,
		Date:       date(2024, time.October, 1),
		Confidence: FallbackConfidence,
		SourceTag:  SourceFallback,
		Synthetic:  true,
	}

	r := BuildReport(ReportInput{Year: 2024, Observation: obs, Now: date(2024, time.October, 1)})

	assert.Equal(t, MixedVegetation, r.PrimarySpecies)
	assert.NotNil(t, r.Species)
	assert.NotNil(t, r.SecondarySpecies)
	assert.Nil(t, r.PhenologyIndex)
	assert.Equal(t, TrendUnknown, r.History.Trend)
	assert.True(t, r.DataQuality.Synthetic)
	assert.Equal(t, QualityLimited, r.DataQuality.Level)
	assert.NotEmpty(t, r.StatusMessage)
}

func TestBuildReport_SeasonFromRequestTime(t *testing.T) {
	// A past-year real observation is dated at the end of its year.
	obs := VegetationObservation{
		Lat:        45,
		Lon:        7,
		IndexValue: 0.55,
		Date:       date(2023, time.December, 31),
		Confidence: 0.95,
		SourceTag:  SourceMODIS,
	}

	r := BuildReport(ReportInput{
		Year:        2023,
		Observation: obs,
		Catalog:     DefaultPhenologyCatalog(),
		Now:         date(2026, time.October, 14),
	})

	assert.Equal(t, SeasonAutumn, r.Season.Season)
	assert.Equal(t, ResolveSeason(45, date(2026, time.October, 14)), r.Season)
}
