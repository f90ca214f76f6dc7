package model

import "math"

const earthRadiusMeters = 6372800

// LatLng is a GPS coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the haversine great-circle distance to other.
func (p LatLng) DistanceMeters(other LatLng) float64 {
	phi1 := p.Lat * math.Pi / 180
	phi2 := other.Lat * math.Pi / 180
	dPhi := (other.Lat - p.Lat) * math.Pi / 180
	dLambda := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
