// Package domain models vegetation-index observations and the bloom
// classification derived from them.
//
// # Data Source
//
// Observations are NDVI-like scalars in [0,1]. The real source is a satellite
// composite (MODIS MOD13Q1, 250 m) summarized over a small neighborhood of the
// requested point; when it is unavailable a synthetic generator stands in and
// tags its output with source "Fallback" and a lower confidence.
//
// # Seasons
//
// Seasons use a fixed three-month grouping. Northern hemisphere:
//
//	Dec-Feb Winter | Mar-May Spring | Jun-Aug Summer | Sep-Nov Autumn
//
// The southern table is the same grouping shifted by six months. Latitude 0 is
// treated as North. The month's position in its group gives the phase
// (Early, Mid, Late).
//
// Climate zones:
//
//	|lat| < 23.5      Tropical (season ignored for phenology)
//	lat >= 23.5       NorthTemperate
//	lat <= -23.5      SouthTemperate
//
// # Classification
//
// Base thresholds (dormant, low, active, peak) = (0.30, 0.50, 0.70, 0.80).
// Seasonal deltas are added per threshold:
//
//	Spring  -0.10 -0.05  0.00 +0.05
//	Summer   0.00  0.00 +0.05 +0.10
//	Autumn   0.00  0.00  0.00  0.00
//	Winter  +0.10 +0.05 -0.05 -0.10
//
// Tropical points add +0.10 to all four. Results are floored at
// (0.10, 0.20, 0.30, 0.40). A reading takes the highest level whose threshold
// it meets, checked peak first. Confidence is
//
//	round(100 * max(0.6, 1 - 2*|v - t|))
//
// where t is the threshold just cleared (the dormant threshold for Dormant).
//
// The bloom score is a separate 0-100 metric:
//
//	round(60*v + 20*c + 20*min(1, v+c))
//
// where c is the primary species' index contribution; both phenology terms
// drop out when the catalog has no entries for the zone and season.
//
// # Cache Keys
//
// Cache keys are "<type>_<lat>_<lon>[_<suffix>]" with coordinates rounded to
// three decimals. TTLs: ndvi 7 days, phenology 14 days, images 30 days,
// location 90 days. See [CacheKey].
package domain
