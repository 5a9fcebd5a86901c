package risk

import (
	"fmt"
	"sort"

	"roadrisk/internal/geo"
	"roadrisk/internal/types"
)

// referenceCities is the fixed list of northern-Algeria reference cities
// used as nearby-zone endpoints.
var referenceCities = []struct {
	id   string
	name string
	pt   types.Point
}{
	{"algiers", "Algiers", types.Point{Lat: 36.7538, Lng: 3.0588}},
	{"boumerdes", "Boumerdes", types.Point{Lat: 36.7664, Lng: 3.4772}},
	{"blida", "Blida", types.Point{Lat: 36.4701, Lng: 2.8277}},
	{"tipaza", "Tipaza", types.Point{Lat: 36.5897, Lng: 2.4474}},
	{"tizi-ouzou", "Tizi Ouzou", types.Point{Lat: 36.7169, Lng: 4.0497}},
	{"bouira", "Bouira", types.Point{Lat: 36.3800, Lng: 3.9014}},
	{"medea", "Medea", types.Point{Lat: 36.2675, Lng: 2.7500}},
	{"bejaia", "Bejaia", types.Point{Lat: 36.7509, Lng: 5.0567}},
	{"chlef", "Chlef", types.Point{Lat: 36.1647, Lng: 1.3317}},
	{"setif", "Setif", types.Point{Lat: 36.1911, Lng: 5.4137}},
	{"constantine", "Constantine", types.Point{Lat: 36.3650, Lng: 6.6147}},
	{"oran", "Oran", types.Point{Lat: 35.6987, Lng: -0.6349}},
}

// synthesisStartBearing is the initial bearing for synthesized zone points.
const synthesisStartBearing = 35.0

// Destinations selects up to maxZones endpoints around origin: reference
// cities within radiusKm sorted nearest first, topped up with points
// synthesized on evenly spread bearings when too few cities qualify.
func Destinations(origin types.Point, radiusKm float64, maxZones int) []types.Destination {
	if maxZones <= 0 {
		return []types.Destination{}
	}

	dests := make([]types.Destination, 0, maxZones)
	for _, city := range referenceCities {
		d := geo.DistanceKm(origin, city.pt)
		if d > radiusKm {
			continue
		}
		dests = append(dests, types.Destination{
			ID:         city.id,
			Name:       city.name,
			Point:      city.pt,
			DistanceKm: geo.Round(d, 2),
		})
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i].DistanceKm < dests[j].DistanceKm })
	if len(dests) > maxZones {
		dests = dests[:maxZones]
	}

	needed := maxZones - len(dests)
	if needed <= 0 {
		return dests
	}

	seen := make(map[string]bool, len(dests))
	for _, d := range dests {
		seen[d.ID] = true
	}

	step := 360.0 / float64(needed)
	for i := 0; i < needed; i++ {
		bearing := synthesisStartBearing + float64(i)*step
		for bearing >= 360 {
			bearing -= 360
		}
		dist := radiusKm * float64(i+1) / float64(needed+1)
		pt := geo.Project(origin, bearing, dist)
		if !pt.Valid() {
			continue
		}
		id := fmt.Sprintf("zone-%03d", int(bearing))
		if seen[id] {
			continue
		}
		seen[id] = true
		dests = append(dests, types.Destination{
			ID:         id,
			Name:       fmt.Sprintf("Zone %d", len(dests)+1),
			Point:      pt,
			DistanceKm: geo.Round(dist, 2),
		})
	}

	return dests
}
