package domain

import (
	"fmt"
	"math"
	"strings"
)

// Thresholds are the index values a reading must meet for each bloom level.
type Thresholds struct {
	Dormant float64 `json:"dormant"`
	Low     float64 `json:"low"`
	Active  float64 `json:"active"`
	Peak    float64 `json:"peak"`
}

var (
	baseThresholds = Thresholds{Dormant: 0.30, Low: 0.50, Active: 0.70, Peak: 0.80}

	// seasonalDeltas are added to each base threshold independently.
	seasonalDeltas = map[Season]Thresholds{
		SeasonSpring: {Dormant: -0.10, Low: -0.05, Active: 0, Peak: 0.05},
		SeasonSummer: {Dormant: 0, Low: 0, Active: 0.05, Peak: 0.10},
		SeasonAutumn: {Dormant: 0, Low: 0, Active: 0, Peak: 0},
		SeasonWinter: {Dormant: 0.10, Low: 0.05, Active: -0.05, Peak: -0.10},
	}

	thresholdFloors = Thresholds{Dormant: 0.10, Low: 0.20, Active: 0.30, Peak: 0.40}
)

// tropicalDelta raises every threshold for points within the tropics.
const tropicalDelta = 0.10

// minConfidence floors the classifier confidence.
const minConfidence = 0.6

// ThresholdsFor computes the season- and latitude-adjusted thresholds.
// Sums are rounded to 1e-6 so the decimal table is reproduced exactly.
func ThresholdsFor(season Season, lat float64) Thresholds {
	delta := seasonalDeltas[season]
	latDelta := 0.0
	if math.Abs(lat) < TropicalLatitude {
		latDelta = tropicalDelta
	}
	adjust := func(base, seasonal, floor float64) float64 {
		return math.Max(floor, roundTo(base+seasonal+latDelta, 6))
	}
	return Thresholds{
		Dormant: adjust(baseThresholds.Dormant, delta.Dormant, thresholdFloors.Dormant),
		Low:     adjust(baseThresholds.Low, delta.Low, thresholdFloors.Low),
		Active:  adjust(baseThresholds.Active, delta.Active, thresholdFloors.Active),
		Peak:    adjust(baseThresholds.Peak, delta.Peak, thresholdFloors.Peak),
	}
}

// Classify maps an index value to a bloom level for a season and latitude.
// The level is the highest threshold the value meets, checked peak first.
func Classify(index float64, season Season, lat float64) BloomClassification {
	t := ThresholdsFor(season, lat)

	var level BloomLevel
	switch {
	case index >= t.Peak:
		level = LevelPeakBloom
	case index >= t.Active:
		level = LevelActiveBloom
	case index >= t.Low:
		level = LevelLowBloom
	default:
		level = LevelDormant
	}
	return classifyAt(index, level, t)
}

// classifyAt builds the classification of index at a known level.
func classifyAt(index float64, level BloomLevel, t Thresholds) BloomClassification {
	matched, rng := levelBand(level, t)
	return BloomClassification{
		Level:          level,
		IntensityLabel: level.Label(),
		ConfidencePct:  classificationConfidence(index, matched),
		Description:    levelDescriptions[level],
		IndexRange:     rng,
		BloomScore:     BloomScore(index, nil),
	}
}

// levelBand returns the threshold a level is matched against and its index
// range label.
func levelBand(level BloomLevel, t Thresholds) (float64, string) {
	switch level {
	case LevelPeakBloom:
		return t.Peak, fmt.Sprintf(">= %.2f", t.Peak)
	case LevelActiveBloom:
		return t.Active, fmt.Sprintf("%.2f-%.2f", t.Active, t.Peak)
	case LevelLowBloom:
		return t.Low, fmt.Sprintf("%.2f-%.2f", t.Low, t.Active)
	default:
		return t.Dormant, fmt.Sprintf("< %.2f", t.Low)
	}
}

func classificationConfidence(index, threshold float64) int {
	c := math.Max(minConfidence, 1-2*math.Abs(index-threshold))
	return int(math.Round(100 * c))
}

var levelDescriptions = map[BloomLevel]string{
	LevelDormant:     "Vegetation is dormant with little or no flowering",
	LevelLowBloom:    "Flowering is beginning in scattered patches",
	LevelActiveBloom: "Widespread flowering is underway",
	LevelPeakBloom:   "Flowering is at or near its seasonal peak",
}

// PhenologyIndex combines the reading with the primary species contribution.
// It returns nil when no phenology data is available.
func PhenologyIndex(index float64, entries []PhenologyEntry) *float64 {
	if len(entries) == 0 {
		return nil
	}
	p := math.Min(1, index+entries[0].IndexContribution)
	return &p
}

// BloomScore is the 0-100 composite intensity metric. The phenology terms
// contribute only when entries are present.
func BloomScore(index float64, entries []PhenologyEntry) int {
	score := 60 * index
	if p := PhenologyIndex(index, entries); p != nil {
		score += 20*entries[0].IndexContribution + 20*(*p)
	}
	return int(math.Max(0, math.Min(100, math.Round(score))))
}

var statusTemplates = map[BloomLevel]string{
	LevelDormant:     "Dormant: %s is resting through %s",
	LevelLowBloom:    "Early bloom: %s is starting to flower this %s",
	LevelActiveBloom: "Active bloom: %s is flowering widely this %s",
	LevelPeakBloom:   "Peak bloom: %s is at full flower this %s",
}

// StatusMessage renders the user-facing status line. An empty species name
// degrades to "local vegetation".
func StatusMessage(level BloomLevel, species string, season Season) string {
	if species == "" {
		species = "local vegetation"
	}
	tmpl, ok := statusTemplates[level]
	if !ok {
		tmpl = statusTemplates[LevelDormant]
	}
	return fmt.Sprintf(tmpl, species, strings.ToLower(string(season)))
}

// Assessment is a classification enriched with phenology context.
type Assessment struct {
	Classification   BloomClassification `json:"classification"`
	Species          []PhenologyEntry    `json:"species"`
	PrimarySpecies   string              `json:"primary_species"`
	SecondarySpecies []string            `json:"secondary_species"`
	PhenologyIndex   *float64            `json:"phenology_index"`
	StatusMessage    string              `json:"status_message"`
}

// Assess classifies a reading and enriches it with the catalog entries for
// its seasonal context. With no entries the answer is presented as mixed
// vegetation in transition and capped at low intensity.
func Assess(index, lat float64, sc SeasonalContext, entries []PhenologyEntry) Assessment {
	c := Classify(index, sc.Season, lat)
	a := Assessment{Species: entries}

	if len(entries) == 0 {
		if c.Level.Rank() > LevelLowBloom.Rank() {
			c = classifyAt(index, LevelLowBloom, ThresholdsFor(sc.Season, lat))
		}
		c.Description = TransitionDescription
		a.Species = []PhenologyEntry{}
		a.PrimarySpecies = MixedVegetation
		a.SecondarySpecies = []string{}
		a.StatusMessage = StatusMessage(c.Level, "", sc.Season)
		a.Classification = c
		return a
	}

	primary := entries[0]
	a.PrimarySpecies = primary.SpeciesName
	a.SecondarySpecies = secondaryNames(entries)
	a.PhenologyIndex = PhenologyIndex(index, entries)
	c.BloomScore = BloomScore(index, entries)
	c.Description = describe(c.Level, primary, a.SecondarySpecies, sc)
	a.StatusMessage = StatusMessage(c.Level, primary.SpeciesName, sc.Season)
	a.Classification = c
	return a
}

// secondaryNames returns entries two and three of the curated list.
func secondaryNames(entries []PhenologyEntry) []string {
	names := []string{}
	for i := 1; i < len(entries) && i < 3; i++ {
		names = append(names, entries[i].SpeciesName)
	}
	return names
}

func describe(level BloomLevel, primary PhenologyEntry, secondary []string, sc SeasonalContext) string {
	var b strings.Builder
	b.WriteString(levelDescriptions[level])
	fmt.Fprintf(&b, ". %s", primary.SpeciesName)
	if primary.ScientificName != "" {
		fmt.Fprintf(&b, " (%s)", primary.ScientificName)
	}
	fmt.Fprintf(&b, " leads %s %s flowering", strings.ToLower(string(sc.Phase)), strings.ToLower(string(sc.Season)))
	if primary.BloomPeriod != "" {
		fmt.Fprintf(&b, ", typically %s", primary.BloomPeriod)
	}
	if len(secondary) > 0 {
		fmt.Fprintf(&b, ", alongside %s", strings.Join(secondary, " and "))
	}
	b.WriteString(".")
	return b.String()
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
