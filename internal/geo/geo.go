package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/landmarkhunt/hunt/pkg/core"
	"github.com/wroge/wgs84"
)

// All coordinates are WGS84 degrees. Inputs in Web Mercator are converted once at import time.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0
	// MetersPerDegree is the local equirectangular scale for one degree of latitude.
	MetersPerDegree = 111320.0
)

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters for two LatLng values.
func Distance(a, b core.LatLng) float64 {
	return DistanceMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// BearingDegrees returns the planar bearing from the first point to the second in [0, 360).
// 0 is north, 90 is east.
func BearingDegrees(lat1, lng1, lat2, lng2 float64) float64 {
	deg := toDeg(math.Atan2(lng2-lng1, lat2-lat1))
	deg = math.Mod(deg+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// AngularDifference returns the absolute difference between two headings folded into [0, 180].
func AngularDifference(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// BoundingBox returns a box around a point that contains every point within radiusMeters.
// Used as a cheap prefilter before the exact distance check.
func BoundingBox(lat, lng, radiusMeters float64) (minLat, minLng, maxLat, maxLng float64) {
	angular := radiusMeters / EarthRadiusMeters
	latDelta := toDeg(angular)

	lngDelta := 180.0
	if s := math.Sin(angular) / math.Cos(toRad(lat)); s < 1 && !math.IsNaN(s) {
		lngDelta = toDeg(math.Asin(s))
	}
	return lat - latDelta, lng - lngDelta, lat + latDelta, lng + lngDelta
}

// LatLngFromString parses a "lat,lng" string.
func LatLngFromString(coords string) (core.LatLng, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	return core.LatLng{Lat: lat, Lng: lng}, nil
}

// ToWGS84 converts an x/y pair in the given EPSG code to a WGS84 coordinate.
// x is easting/longitude and y is northing/latitude.
func ToWGS84(x, y float64, srid int) (core.LatLng, error) {
	switch srid {
	case 0, 4326:
		return core.LatLng{Lat: y, Lng: x}, nil
	case 3857:
		f := wgs84.EPSG().Transform(3857, 4326)
		lng, lat, _ := f(x, y, 0)
		return core.LatLng{Lat: lat, Lng: lng}, nil
	default:
		return core.LatLng{}, fmt.Errorf("unsupported srid %d", srid)
	}
}

// FromWGS84 converts a WGS84 coordinate to Web Mercator meters.
func FromWGS84(p core.LatLng) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(p.Lng, p.Lat, 0)
	return x, y
}
