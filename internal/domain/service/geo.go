package service

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/peacemap/riskengine/internal/domain/model"
)

const (
	earthRadiusKm = 6371.0088
	kmPerDegree   = 111.0
)

// greatCircleKm returns the great-circle distance between two coordinates.
func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusKm
}

// nearestPortKm returns the distance from a point to the closest port.
func nearestPortKm(lat, lon float64, ports []model.Port) (float64, bool) {
	best := math.Inf(1)
	for _, p := range ports {
		if d := greatCircleKm(lat, lon, p.Lat, p.Lon); d < best {
			best = d
		}
	}
	return best, !math.IsInf(best, 1)
}

// boundsAreaKm2 approximates the area of a bounding box with an
// equirectangular projection at the box's mean latitude.
func boundsAreaKm2(b model.Bounds) float64 {
	latKm := math.Abs(b.North-b.South) * kmPerDegree
	meanLat := (b.North + b.South) / 2 * math.Pi / 180
	lonKm := math.Abs(b.East-b.West) * kmPerDegree * math.Cos(meanLat)
	return latKm * lonKm
}
