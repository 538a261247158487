package ride

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Nearby pairs a ride with its pickup distance from the search point.
type Nearby struct {
	Ride       RideRequest
	DistanceKm float64
}

// nearest orders rides by pickup distance from center and drops those further
// than radiusKm. A radius <= 0 keeps everything.
func nearest(rides []RideRequest, center Point, radiusKm float64, limit int) []Nearby {
	out := make([]Nearby, 0, len(rides))
	for _, r := range rides {
		d := DistanceKm(center, r.Origin)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		out = append(out, Nearby{Ride: r, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
