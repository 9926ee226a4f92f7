package domain

import (
	"math"
	"time"
)

// TropicalLatitude is the absolute latitude below which a point is tropical.
const TropicalLatitude = 23.5

// northernSeasons maps calendar month to (season, phase) in the northern
// hemisphere. The southern table is the same lookup shifted by six months.
var northernSeasons = [13]struct {
	season Season
	phase  Phase
}{
	time.January:   {SeasonWinter, PhaseMid},
	time.February:  {SeasonWinter, PhaseLate},
	time.March:     {SeasonSpring, PhaseEarly},
	time.April:     {SeasonSpring, PhaseMid},
	time.May:       {SeasonSpring, PhaseLate},
	time.June:      {SeasonSummer, PhaseEarly},
	time.July:      {SeasonSummer, PhaseMid},
	time.August:    {SeasonSummer, PhaseLate},
	time.September: {SeasonAutumn, PhaseEarly},
	time.October:   {SeasonAutumn, PhaseMid},
	time.November:  {SeasonAutumn, PhaseLate},
	time.December:  {SeasonWinter, PhaseEarly},
}

type seasonKey struct {
	season     Season
	hemisphere Hemisphere
}

// seasonLabels is descriptive metadata only; it never feeds numeric logic.
var seasonLabels = map[seasonKey]Timeline{
	{SeasonSpring, HemisphereNorth}: {Start: "March", Peak: "April", End: "May"},
	{SeasonSummer, HemisphereNorth}: {Start: "June", Peak: "July", End: "August"},
	{SeasonAutumn, HemisphereNorth}: {Start: "September", Peak: "October", End: "November"},
	{SeasonWinter, HemisphereNorth}: {Start: "December", Peak: "January", End: "February"},
	{SeasonSpring, HemisphereSouth}: {Start: "September", Peak: "October", End: "November"},
	{SeasonSummer, HemisphereSouth}: {Start: "December", Peak: "January", End: "February"},
	{SeasonAutumn, HemisphereSouth}: {Start: "March", Peak: "April", End: "May"},
	{SeasonWinter, HemisphereSouth}: {Start: "June", Peak: "July", End: "August"},
}

// HemisphereFor classifies a latitude by sign. Zero counts as North.
func HemisphereFor(lat float64) Hemisphere {
	if lat >= 0 {
		return HemisphereNorth
	}
	return HemisphereSouth
}

// ClimateZoneFor buckets a latitude into a phenology climate zone.
func ClimateZoneFor(lat float64) ClimateZone {
	switch {
	case math.Abs(lat) < TropicalLatitude:
		return ZoneTropical
	case lat > 0:
		return ZoneNorthTemperate
	default:
		return ZoneSouthTemperate
	}
}

// ResolveSeason derives the seasonal context for a latitude on a date.
// It is a pure function of its inputs.
func ResolveSeason(lat float64, date time.Time) SeasonalContext {
	hemisphere := HemisphereFor(lat)
	month := date.Month()
	if hemisphere == HemisphereSouth {
		month = (month+5)%12 + 1
	}
	s := northernSeasons[month]
	labels := seasonLabels[seasonKey{s.season, hemisphere}]

	return SeasonalContext{
		Hemisphere:  hemisphere,
		Season:      s.season,
		Phase:       s.phase,
		ClimateZone: ClimateZoneFor(lat),
		StartLabel:  labels.Start,
		PeakLabel:   labels.Peak,
		EndLabel:    labels.End,
	}
}

// ResolveCurrentSeason resolves the season for today on the package clock.
func ResolveCurrentSeason(lat float64) SeasonalContext {
	return ResolveSeason(lat, clock.Now())
}

// Timeline returns the descriptive season window.
func (s SeasonalContext) Timeline() Timeline {
	return Timeline{Start: s.StartLabel, Peak: s.PeakLabel, End: s.EndLabel}
}
