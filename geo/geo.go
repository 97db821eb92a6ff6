// Package geo provides great-circle distance math for presence validation.
//
// Coordinates are WGS84 decimal degrees. Distances are meters.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points
// using the Haversine formula.
//
// Properties:
//   - Symmetric: DistanceMeters(a, b) == DistanceMeters(b, a)
//   - Identical points return 0
//   - Non-finite inputs propagate as NaN; callers must guard before
//     comparing the result (see presence.Evaluate)
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// IsFinite reports whether both coordinate components are finite numbers.
// NaN and ±Inf coordinates come from malformed client payloads and must
// never reach a tolerance comparison.
func IsFinite(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsInf(lat, 0) &&
		!math.IsNaN(lon) && !math.IsInf(lon, 0)
}

// InBounds reports whether the coordinate is a plausible WGS84 position.
func InBounds(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
