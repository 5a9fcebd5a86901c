// Package geo provides the coordinate math used by the enrichment pipeline:
// great-circle distance, bearing-based destination projection, and the
// rounding/deduplication helpers that cache keys and route paths depend on.
package geo

import (
	"fmt"
	"math"

	"roadrisk/internal/types"
)

// earthRadiusKm is the mean Earth radius used for great-circle math.
const earthRadiusKm = 6371.0

// dedupPrecision is the number of decimal degrees used when deduplicating
// consecutive path points (~0.11 m at the equator).
const dedupPrecision = 6

// DistanceKm calculates the great-circle distance between two points using
// the Haversine formula. Result is in kilometers.
func DistanceKm(a, b types.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Project returns the point reached by travelling distanceKm from origin on
// the given initial bearing (degrees clockwise from north).
func Project(origin types.Point, bearingDeg, distanceKm float64) types.Point {
	lat1 := origin.Lat * math.Pi / 180
	lng1 := origin.Lng * math.Pi / 180
	brng := bearingDeg * math.Pi / 180
	d := distanceKm / earthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalize longitude to [-180, 180).
	lng2 = math.Mod(lng2+3*math.Pi, 2*math.Pi) - math.Pi

	return types.Point{
		Lat: lat2 * 180 / math.Pi,
		Lng: lng2 * 180 / math.Pi,
	}
}

// Round truncates a coordinate to the given number of decimal degrees.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// CellKey renders a point as a "lat:lng" string rounded to the given decimal
// precision. Points in the same cell share a key.
func CellKey(p types.Point, decimals int) string {
	return fmt.Sprintf("%.*f:%.*f", decimals, p.Lat, decimals, p.Lng)
}

// DedupPath removes consecutive duplicate points from a path, comparing at
// 6-decimal precision. Order is preserved; the first of each run survives.
func DedupPath(path []types.Point) []types.Point {
	if len(path) == 0 {
		return nil
	}
	out := make([]types.Point, 0, len(path))
	prev := ""
	for _, p := range path {
		key := CellKey(p, dedupPrecision)
		if key == prev {
			continue
		}
		out = append(out, p)
		prev = key
	}
	return out
}

// StraightLine returns the minimal 2-point path between origin and
// destination, used when the routing provider is unavailable.
func StraightLine(origin, destination types.Point) []types.Point {
	return []types.Point{origin, destination}
}
