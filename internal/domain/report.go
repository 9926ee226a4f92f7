package domain

import "time"

// ReportInput carries everything needed to compose a bloom report.
type ReportInput struct {
	ID          string
	Year        int
	Observation VegetationObservation
	Catalog     *PhenologyCatalog
	// History is the chronological index series used for trend and
	// percentile; it may be empty.
	History []float64
	Imagery Imagery
	Now     time.Time
}

// BuildReport composes season, phenology, classification, and data quality
// for one observation. The season is that of Now, not of the observation
// date. All optional fields are defaulted here so consumers never see nil
// slices.
func BuildReport(in ReportInput) BloomReport {
	obs := in.Observation
	seasonAt := in.Now
	if seasonAt.IsZero() {
		seasonAt = obs.Date
	}
	sc := ResolveSeason(obs.Lat, seasonAt)
	entries := in.Catalog.ForContext(sc)
	a := Assess(obs.IndexValue, obs.Lat, sc, entries)

	speciesIdentified := len(entries) > 0
	quality := AssessDataQuality(obs, speciesIdentified, a.PhenologyIndex != nil)

	return BloomReport{
		ID:               in.ID,
		Lat:              obs.Lat,
		Lon:              obs.Lon,
		Year:             in.Year,
		NDVIIndex:        roundTo(obs.IndexValue, 3),
		Observation:      obs,
		Season:           sc,
		Classification:   a.Classification,
		Species:          a.Species,
		PrimarySpecies:   a.PrimarySpecies,
		SecondarySpecies: a.SecondarySpecies,
		PhenologyIndex:   a.PhenologyIndex,
		StatusMessage:    a.StatusMessage,
		Timeline:         sc.Timeline(),
		DataQuality:      quality,
		History:          CompareHistory(obs.IndexValue, in.History),
		MapURL:           in.Imagery.TileURL,
		ThumbnailURL:     in.Imagery.ThumbnailURL,
		LastUpdated:      in.Now.UTC().Truncate(time.Second),
	}
}
