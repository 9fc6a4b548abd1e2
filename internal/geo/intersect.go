package geo

import (
	"math"

	"github.com/landmarkhunt/hunt/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Intersector decides whether two rings share any area or boundary.
type Intersector func(a, b core.Ring) bool

// PolygonsIntersect reports whether two rings intersect.
//
// Rings that collapse to a single distinct vertex are treated as a point and
// rings with two distinct vertices as a segment. A ring that does not form a
// valid polygon falls back to its boundary line. Empty rings intersect nothing.
func PolygonsIntersect(a, b core.Ring) bool {
	ga, ok := RingGeometry(a)
	if !ok {
		return false
	}
	gb, ok := RingGeometry(b)
	if !ok {
		return false
	}
	return geom.Intersects(ga, gb)
}

// RingGeometry converts a ring to the simplest geometry that represents it.
// X is longitude and Y is latitude.
func RingGeometry(r core.Ring) (geom.Geometry, bool) {
	pts := distinctVertices(r)
	switch len(pts) {
	case 0:
		return geom.Geometry{}, false
	case 1:
		return geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: pts[0].Lng, Y: pts[0].Lat},
			Type: geom.DimXY,
		}).AsGeometry(), true
	case 2:
		return lineString(pts).AsGeometry(), true
	}

	closed := append(pts, pts[0])
	ls := lineString(closed)
	poly := geom.NewPolygon([]geom.LineString{ls})
	if err := poly.Validate(); err != nil {
		return ls.AsGeometry(), true
	}
	return poly.AsGeometry(), true
}

func lineString(pts []core.LatLng) geom.LineString {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.Lng, p.Lat)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

// distinctVertices drops consecutive duplicates and the closing vertex.
// Non-finite vertices make the whole ring unusable.
func distinctVertices(r core.Ring) []core.LatLng {
	out := make([]core.LatLng, 0, len(r))
	for _, p := range r {
		if !finite(p.Lat) || !finite(p.Lng) {
			return nil
		}
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidFootprint reports whether a ring can be used as a landmark footprint.
func ValidFootprint(r core.Ring) bool {
	return len(distinctVertices(r)) >= 3
}
