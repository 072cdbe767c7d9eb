package geo

import (
	"math"

	"ridelink/internal/core/myerrors"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in km.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// ValidateCoords rejects non-finite or out-of-range coordinates.
func ValidateCoords(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.Abs(lat) > 90 {
		return myerrors.Validation("latitude", "must be finite and within [-90, 90]")
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || math.Abs(lng) > 180 {
		return myerrors.Validation("longitude", "must be finite and within [-180, 180]")
	}
	return nil
}

// Usable reports whether a stored position can enter candidacy. The zero
// coordinate pair is treated as "no fix yet".
func Usable(lat, lng float64) bool {
	if ValidateCoords(lat, lng) != nil {
		return false
	}
	return lat != 0 || lng != 0
}
