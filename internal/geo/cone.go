package geo

import (
	"math"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// BuildViewCone returns the circular sector the pose is looking at as a closed ring.
//
// The ring starts at the pose point, sweeps resolution+1 arc points from
// heading-halfSpan to heading+halfSpan, then returns to the pose point.
// Offsets use a local equirectangular approximation, fine for radii up to a
// few hundred meters.
func BuildViewCone(pose core.Pose) core.Ring {
	steps := pose.Resolution
	if steps < 1 {
		steps = 1
	}

	origin := pose.Point()
	ring := make(core.Ring, 0, steps+3)
	ring = append(ring, origin)

	start := pose.Heading - pose.HalfSpanDeg
	step := (2 * pose.HalfSpanDeg) / float64(steps)
	cosLat := math.Cos(toRad(pose.Lat))

	for i := 0; i <= steps; i++ {
		theta := toRad(start + float64(i)*step)
		dLat := pose.RadiusMeters * math.Cos(theta) / MetersPerDegree
		dLng := pose.RadiusMeters * math.Sin(theta) / (MetersPerDegree * cosLat)
		ring = append(ring, core.LatLng{Lat: pose.Lat + dLat, Lng: pose.Lng + dLng})
	}

	return append(ring, origin)
}
