package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/landmarkhunt/hunt/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrNotPolygonal is returned when a geometry has no polygon to take a footprint from.
var ErrNotPolygonal = errors.New("geometry is not a polygon")

// RingFromGeoJSON parses a GeoJSON Polygon or MultiPolygon geometry into a footprint ring.
// For a MultiPolygon the exterior ring of the largest member is used.
func RingFromGeoJSON(data []byte) (core.Ring, error) {
	g, err := geom.UnmarshalGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse footprint: %w", err)
	}
	return RingFromGeometry(g)
}

// RingFromGeometry extracts a footprint ring from a geometry.
func RingFromGeometry(g geom.Geometry) (core.Ring, error) {
	switch g.Type() {
	case geom.TypePolygon:
		p, ok := g.AsPolygon()
		if !ok {
			return nil, ErrNotPolygonal
		}
		return ringFromLineString(p.ExteriorRing()), nil
	case geom.TypeMultiPolygon:
		mp, ok := g.AsMultiPolygon()
		if !ok || mp.NumPolygons() == 0 {
			return nil, ErrNotPolygonal
		}
		best := mp.PolygonN(0)
		for i := 1; i < mp.NumPolygons(); i++ {
			if p := mp.PolygonN(i); p.Area() > best.Area() {
				best = p
			}
		}
		return ringFromLineString(best.ExteriorRing()), nil
	default:
		return nil, ErrNotPolygonal
	}
}

func ringFromLineString(ls geom.LineString) core.Ring {
	seq := ls.Coordinates()
	ring := make(core.Ring, 0, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		ring = append(ring, core.LatLng{Lat: xy.Y, Lng: xy.X})
	}
	return ring
}

// RingToGeoJSON encodes a footprint ring as a GeoJSON Polygon geometry.
func RingToGeoJSON(r core.Ring) ([]byte, error) {
	if len(r) == 0 {
		return nil, ErrNotPolygonal
	}
	pts := []core.LatLng(r)
	if !r.Closed() {
		pts = append(append([]core.LatLng{}, r...), r[0])
	}
	poly := geom.NewPolygon([]geom.LineString{lineString(pts)})
	return poly.MarshalJSON()
}

// Centroid returns the centroid of a footprint. Degenerate rings fall back to
// the centroid of their point or segment.
func Centroid(r core.Ring) (core.LatLng, bool) {
	g, ok := RingGeometry(r)
	if !ok {
		return core.LatLng{}, false
	}
	xy, ok := g.Centroid().XY()
	if !ok {
		return core.LatLng{}, false
	}
	return core.LatLng{Lat: xy.Y, Lng: xy.X}, true
}

// SquareFootprint returns an axis-aligned square ring around center.
// halfSideMeters is the distance from the center to each side.
func SquareFootprint(center core.LatLng, halfSideMeters float64) core.Ring {
	dLat := halfSideMeters / MetersPerDegree
	dLng := halfSideMeters / (MetersPerDegree * math.Cos(toRad(center.Lat)))
	return core.Ring{
		{Lat: center.Lat - dLat, Lng: center.Lng - dLng},
		{Lat: center.Lat - dLat, Lng: center.Lng + dLng},
		{Lat: center.Lat + dLat, Lng: center.Lng + dLng},
		{Lat: center.Lat + dLat, Lng: center.Lng - dLng},
		{Lat: center.Lat - dLat, Lng: center.Lng - dLng},
	}
}
