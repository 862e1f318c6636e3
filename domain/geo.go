package domain

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// DefaultStaleThresholdKm is how far a saved location may drift from the
// current device position before a refresh is suggested.
const DefaultStaleThresholdKm = 5.0

// DistanceKm returns the great-circle distance between two coordinate pairs
// in kilometres.
func DistanceKm(a, b Coordinates) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(la1)*math.Cos(la2)*sinLng*sinLng
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// IsStale reports whether the saved location has drifted more than
// thresholdKm away from the current device position. Absent locations are
// never stale.
func IsStale(current, saved *Location, thresholdKm float64) bool {
	if current == nil || saved == nil {
		return false
	}
	return DistanceKm(current.Coords, saved.Coords) > thresholdKm
}
