package geo

import (
	"github.com/landmarkhunt/hunt/pkg/core"
)

// Detector finds the landmark a pose is looking at.
// The zero value uses PolygonsIntersect.
type Detector struct {
	Intersect Intersector
}

// Detect returns the candidate the pose faces most directly among those whose
// footprint intersects the pose's view cone.
//
// Candidates are compared by the angular difference between the heading and
// the bearing to their centroid. On a tie the earlier candidate wins.
// Candidates without a usable footprint are skipped.
func (d Detector) Detect(pose core.Pose, candidates []core.Landmark) (core.Landmark, bool) {
	intersect := d.Intersect
	if intersect == nil {
		intersect = PolygonsIntersect
	}

	cone := BuildViewCone(pose)

	var (
		best     core.Landmark
		bestDiff float64
		found    bool
	)
	for _, c := range candidates {
		if !ValidFootprint(c.Footprint) {
			continue
		}
		if !intersect(cone, c.Footprint) {
			continue
		}
		bearing := BearingDegrees(pose.Lat, pose.Lng, c.Centroid.Lat, c.Centroid.Lng)
		diff := AngularDifference(pose.Heading, bearing)
		if !found || diff < bestDiff {
			best, bestDiff, found = c, diff, true
		}
	}
	return best, found
}

// Detect runs the default Detector.
func Detect(pose core.Pose, candidates []core.Landmark) (core.Landmark, bool) {
	return Detector{}.Detect(pose, candidates)
}
