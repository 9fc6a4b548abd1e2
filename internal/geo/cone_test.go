package geo

import (
	"testing"

	"github.com/landmarkhunt/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoPoint(lat, lng float64) core.LatLng {
	return core.LatLng{Lat: lat, Lng: lng}
}

func testPose(heading float64) core.Pose {
	return core.Pose{
		Lat:          0,
		Lng:          0,
		Heading:      heading,
		HalfSpanDeg:  15,
		RadiusMeters: 50,
		Resolution:   10,
	}
}

func TestBuildViewCone_Shape(t *testing.T) {
	pose := testPose(0)
	ring := BuildViewCone(pose)

	// origin + resolution+1 arc points + closing origin
	require.Len(t, ring, pose.Resolution+3)
	assert.Equal(t, pose.Point(), ring[0])
	assert.Equal(t, pose.Point(), ring[len(ring)-1])
	assert.True(t, ring.Closed())

	for _, p := range ring[1 : len(ring)-1] {
		assert.InDelta(t, 50, Distance(pose.Point(), p), 0.5)
	}
}

func TestBuildViewCone_ArcSpansHeading(t *testing.T) {
	pose := testPose(90)
	ring := BuildViewCone(pose)

	first := ring[1]
	last := ring[len(ring)-2]
	assert.InDelta(t, 75, BearingDegrees(0, 0, first.Lat, first.Lng), 1e-6)
	assert.InDelta(t, 105, BearingDegrees(0, 0, last.Lat, last.Lng), 1e-6)

	mid := ring[1+pose.Resolution/2]
	assert.InDelta(t, 90, BearingDegrees(0, 0, mid.Lat, mid.Lng), 1e-6)
}

func TestBuildViewCone_ZeroResolutionUsesOneStep(t *testing.T) {
	pose := testPose(0)
	pose.Resolution = 0
	ring := BuildViewCone(pose)
	assert.Len(t, ring, 4)
}

func TestBuildViewCone_ZeroRadiusCollapsesToPoint(t *testing.T) {
	pose := testPose(0)
	pose.RadiusMeters = 0
	ring := BuildViewCone(pose)
	for _, p := range ring {
		assert.Equal(t, pose.Point(), p)
	}
}
