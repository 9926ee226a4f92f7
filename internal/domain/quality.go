package domain

import (
	"math"
	"slices"
)

// Weights of the data-quality score, in points out of 100.
const (
	qualityConfidenceWeight = 40
	qualitySourceWeight     = 20
	qualitySourcePartial    = 10
	qualitySpeciesWeight    = 20
	qualityPhenologyWeight  = 20
)

// AssessDataQuality grades an answer from its observation provenance and how
// much phenology context was resolved.
func AssessDataQuality(obs VegetationObservation, speciesIdentified, phenologyComputed bool) DataQuality {
	score := qualityConfidenceWeight * clamp(obs.Confidence, 0, 1)
	if obs.Synthetic {
		score += qualitySourcePartial
	} else {
		score += qualitySourceWeight
	}
	if speciesIdentified {
		score += qualitySpeciesWeight
	}
	if phenologyComputed {
		score += qualityPhenologyWeight
	}

	s := int(math.Round(score))
	var level QualityLevel
	switch {
	case s >= 80:
		level = QualityExcellent
	case s >= 60:
		level = QualityGood
	case s >= 40:
		level = QualityFair
	default:
		level = QualityLimited
	}

	return DataQuality{
		Level:      level,
		Score:      s,
		Source:     obs.SourceTag,
		Confidence: obs.Confidence,
		Synthetic:  obs.Synthetic,
	}
}

// trendWindow is the number of trailing points used for the trend.
const trendWindow = 3

// trendThreshold is the relative change that counts as a trend.
const trendThreshold = 0.10

// CompareHistory computes the short-term trend of a chronological series and
// the percentile rank of current within it. Ties count half, so a value equal
// to every sample ranks at the 50th percentile. Empty history yields
// TrendUnknown and a nil percentile.
func CompareHistory(current float64, history []float64) HistoricalComparison {
	if len(history) == 0 {
		return HistoricalComparison{Trend: TrendUnknown}
	}

	window := history[max(0, len(history)-trendWindow):]
	trend := TrendStable
	if len(window) >= 2 {
		first, last := window[0], window[len(window)-1]
		var change float64
		switch {
		case first != 0:
			change = (last - first) / math.Abs(first)
		case last > 0:
			change = math.Inf(1)
		case last < 0:
			change = math.Inf(-1)
		}
		switch {
		case change > trendThreshold:
			trend = TrendIncreasing
		case change < -trendThreshold:
			trend = TrendDecreasing
		}
	}

	sorted := slices.Clone(history)
	slices.Sort(sorted)
	below, _ := slices.BinarySearch(sorted, current)
	equal := 0
	for i := below; i < len(sorted) && sorted[i] == current; i++ {
		equal++
	}
	pct := 100 * (float64(below) + 0.5*float64(equal)) / float64(len(sorted))
	pct = roundTo(pct, 1)

	return HistoricalComparison{
		Trend:      trend,
		Percentile: &pct,
		Samples:    len(history),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
