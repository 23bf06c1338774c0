package service

import (
	"math"

	"github.com/nandanugg/region-check/module/core/domain"
)

const earthRadiusMeters = 6371000

// Distance returns the great-circle distance between a and b in meters.
// Inputs are not validated; out-of-range coordinates still yield a number.
func Distance(a, b domain.GeoPoint) float64 {
	return haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Evaluate classifies position against cfg. A point exactly on the
// boundary is inside.
func Evaluate(position domain.GeoPoint, cfg domain.GeofenceConfig) domain.EvaluationResult {
	dist := Distance(position, cfg.Target)
	return domain.EvaluationResult{
		DistanceMeters: dist,
		Inside:         dist <= cfg.RadiusMeters,
	}
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
