// pkg/core/geo.go
package core

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed ring of vertices. The last vertex repeats the first.
type Ring []LatLng

// Closed reports whether the ring has at least one vertex and ends where it starts.
func (r Ring) Closed() bool {
	return len(r) > 0 && r[0] == r[len(r)-1]
}

// Pose is the player's position, facing and view cone shape.
type Pose struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Heading      float64 `json:"heading"` // degrees, 0 = north, clockwise
	HalfSpanDeg  float64 `json:"halfSpanDeg"`
	RadiusMeters float64 `json:"radiusMeters"`
	Resolution   int     `json:"resolution"` // number of arc steps
}

// Point returns the pose position.
func (p Pose) Point() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}
