// Package geoutil holds small coordinate helpers shared by the map core:
// great-circle distance with the popup's formatting rules, and bounds
// accumulation over a set of points.
package geoutil

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// kmPerDegree is one degree of arc: 60 nautical miles in statute miles,
// then kilometers. Popup distances have always been computed with it.
const kmPerDegree = 60 * 1.1515 * 1.609344

// DistanceKm returns the great-circle distance between two lon/lat points
// in kilometers, by the spherical law of cosines.
func DistanceKm(a, b orb.Point) float64 {
	lat1, lat2 := deg2rad(a.Lat()), deg2rad(b.Lat())
	cos := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(deg2rad(a.Lon()-b.Lon()))
	return rad2deg(math.Acos(math.Min(1, cos))) * kmPerDegree
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// Distance returns the distance between (lat1, lon1) and (lat2, lon2), given in
// degrees, as kilometers rounded to two decimals.
//
// Identical coordinates return the bare string "0", not "0.00". Existing
// consumers compare against that value, so it is kept.
func Distance(lat1, lon1, lat2, lon2 float64) string {
	if lat1 == lat2 && lon1 == lon2 {
		return "0"
	}
	km := DistanceKm(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
	return strconv.FormatFloat(km, 'f', 2, 64)
}

// Bounds extends an empty box over every point. ok is false when points is empty.
func Bounds(points []orb.Point) (b orb.Bound, ok bool) {
	for i, p := range points {
		if i == 0 {
			b = p.Bound()
			continue
		}
		b = b.Extend(p)
	}
	return b, len(points) > 0
}

// ValidLonLat reports whether p is a placeable WGS84 coordinate.
func ValidLonLat(p orb.Point) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}
