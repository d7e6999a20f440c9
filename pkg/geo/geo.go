// Package geo holds the zip-centroid primitives shared by every store:
// points, zip validation and great-circle distance.
package geo

import (
	"math"
	"regexp"
)

// MetersPerMile converts search radii into the store's native unit.
const MetersPerMile = 1609.34

// EarthRadiusMeters is the mean earth radius used by HaversineMeters.
const EarthRadiusMeters = 6371008.8

var zipPattern = regexp.MustCompile(`^[0-9]{5}$`)

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// Centroid is the representative point for a zip code plus region metadata.
type Centroid struct {
	Zip    string `json:"zip"`
	Point  Point  `json:"point"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	County string `json:"county,omitempty"`
}

// ValidZip reports whether s is exactly five ASCII digits.
func ValidZip(s string) bool {
	return zipPattern.MatchString(s)
}

// MilesToMeters converts a radius in miles to meters.
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// NorthOf returns the point meters due north of p. Along a meridian the
// haversine distance back to p equals meters exactly.
func NorthOf(p Point, meters float64) Point {
	return Point{Lon: p.Lon, Lat: p.Lat + (meters/EarthRadiusMeters)*180/math.Pi}
}
