package domain

import "time"

// Hemisphere is derived from the sign of the latitude.
type Hemisphere string

const (
	HemisphereNorth Hemisphere = "North"
	HemisphereSouth Hemisphere = "South"
)

// Season is one of the four meteorological seasons.
type Season string

const (
	SeasonSpring Season = "Spring"
	SeasonSummer Season = "Summer"
	SeasonAutumn Season = "Autumn"
	SeasonWinter Season = "Winter"
)

// Seasons lists every season in calendar order starting with spring.
var Seasons = []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter}

// Phase is the position of a month within its three-month season.
type Phase string

const (
	PhaseEarly Phase = "Early"
	PhaseMid   Phase = "Mid"
	PhaseLate  Phase = "Late"
)

// ClimateZone is a coarse latitude bucket used to select phenology data.
type ClimateZone string

const (
	ZoneNorthTemperate ClimateZone = "NorthTemperate"
	ZoneSouthTemperate ClimateZone = "SouthTemperate"
	ZoneTropical       ClimateZone = "Tropical"
)

// BloomLevel is the discrete bloom intensity.
type BloomLevel string

const (
	LevelDormant     BloomLevel = "Dormant"
	LevelLowBloom    BloomLevel = "LowBloom"
	LevelActiveBloom BloomLevel = "ActiveBloom"
	LevelPeakBloom   BloomLevel = "PeakBloom"
)

// Rank orders bloom levels from Dormant (0) to PeakBloom (3).
func (l BloomLevel) Rank() int {
	switch l {
	case LevelLowBloom:
		return 1
	case LevelActiveBloom:
		return 2
	case LevelPeakBloom:
		return 3
	default:
		return 0
	}
}

// Label is the human-readable intensity label, e.g. "Peak Bloom".
func (l BloomLevel) Label() string {
	switch l {
	case LevelLowBloom:
		return "Low Bloom"
	case LevelActiveBloom:
		return "Active Bloom"
	case LevelPeakBloom:
		return "Peak Bloom"
	default:
		return "Dormant"
	}
}

// Source tags attached to observations.
const (
	SourceMODIS    = "MODIS"
	SourceFallback = "Fallback"
)

// VegetationObservation is a single vegetation-index reading for a point.
type VegetationObservation struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	IndexValue     float64   `json:"index_value"`
	Date           time.Time `json:"observation_date"`
	Confidence     float64   `json:"confidence"`
	SourceTag      string    `json:"source_tag"`
	Synthetic      bool      `json:"synthetic"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
}

// SeasonalContext describes where a date falls in the local seasonal cycle.
type SeasonalContext struct {
	Hemisphere  Hemisphere  `json:"hemisphere"`
	Season      Season      `json:"season"`
	Phase       Phase       `json:"phase"`
	ClimateZone ClimateZone `json:"climate_zone"`
	StartLabel  string      `json:"season_start"`
	PeakLabel   string      `json:"season_peak"`
	EndLabel    string      `json:"season_end"`
}

// PhenologyEntry is a characteristic flowering species for a zone and season.
type PhenologyEntry struct {
	SpeciesName       string  `json:"species_name" yaml:"species"`
	ScientificName    string  `json:"scientific_name" yaml:"scientific_name"`
	BloomPeriod       string  `json:"bloom_period" yaml:"bloom_period"`
	IndexContribution float64 `json:"index_contribution" yaml:"index_contribution"`
}

// BloomClassification is the classifier output for one index value.
type BloomClassification struct {
	Level          BloomLevel `json:"level"`
	IntensityLabel string     `json:"intensity"`
	ConfidencePct  int        `json:"confidence_pct"`
	Description    string     `json:"description"`
	IndexRange     string     `json:"index_range"`
	BloomScore     int        `json:"bloom_score"`
}

// QualityLevel grades how trustworthy a bloom answer is.
type QualityLevel string

const (
	QualityExcellent QualityLevel = "Excellent"
	QualityGood      QualityLevel = "Good"
	QualityFair      QualityLevel = "Fair"
	QualityLimited   QualityLevel = "Limited"
)

// DataQuality summarizes the provenance of a bloom answer.
type DataQuality struct {
	Level      QualityLevel `json:"level"`
	Score      int          `json:"score"`
	Source     string       `json:"source"`
	Confidence float64      `json:"confidence"`
	Synthetic  bool         `json:"synthetic"`
}

// Trend is the short-term direction of a vegetation series.
type Trend string

const (
	TrendIncreasing Trend = "Increasing"
	TrendDecreasing Trend = "Decreasing"
	TrendStable     Trend = "Stable"
	TrendUnknown    Trend = "Unknown"
)

// HistoricalComparison places a current reading against past readings.
type HistoricalComparison struct {
	Trend      Trend    `json:"trend"`
	Percentile *float64 `json:"percentile"`
	Samples    int      `json:"samples"`
}

// Timeline is the descriptive season window shown with a report.
type Timeline struct {
	Start string `json:"start"`
	Peak  string `json:"peak"`
	End   string `json:"end"`
}

// BloomReport is the composed answer for one location and year.
type BloomReport struct {
	ID               string                `json:"id"`
	Lat              float64               `json:"lat"`
	Lon              float64               `json:"lon"`
	Year             int                   `json:"year"`
	NDVIIndex        float64               `json:"ndvi_index"`
	Observation      VegetationObservation `json:"observation"`
	Season           SeasonalContext       `json:"season"`
	Classification   BloomClassification   `json:"classification"`
	Species          []PhenologyEntry      `json:"species"`
	PrimarySpecies   string                `json:"primary_species"`
	SecondarySpecies []string              `json:"secondary_species"`
	PhenologyIndex   *float64              `json:"phenology_index"`
	StatusMessage    string                `json:"status_message"`
	Timeline         Timeline              `json:"timeline"`
	DataQuality      DataQuality           `json:"data_quality"`
	History          HistoricalComparison  `json:"history"`
	MapURL           string                `json:"map_url,omitempty"`
	ThumbnailURL     string                `json:"thumbnail_url,omitempty"`
	LastUpdated      time.Time             `json:"last_updated"`
}

// MonthlyValue is one point of a monthly vegetation series.
type MonthlyValue struct {
	Month time.Time `json:"month"`
	Value float64   `json:"value"`
}

// ForecastPoint is one month of a vegetation-index forecast.
type ForecastPoint struct {
	TargetMonth    time.Time `json:"target_month"`
	Month          string    `json:"month"`
	MonthName      string    `json:"month_name"`
	Offset         int       `json:"offset"`
	PredictedIndex float64   `json:"predicted_ndvi"`
	LowerBound     float64   `json:"lower_bound"`
	UpperBound     float64   `json:"upper_bound"`
}

// Forecast is an N-month-ahead prediction for one location.
type Forecast struct {
	Lat            float64         `json:"lat"`
	Lon            float64         `json:"lon"`
	Points         []ForecastPoint `json:"forecast"`
	Method         string          `json:"method"`
	LowConfidence  bool            `json:"low_confidence"`
	Observations   int             `json:"observations"`
	ResidualStdDev float64         `json:"residual_std_dev"`
	SourceTag      string          `json:"source_tag,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Imagery holds overlay URLs for a location, when the provider offers them.
type Imagery struct {
	TileURL      string `json:"tile_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}
