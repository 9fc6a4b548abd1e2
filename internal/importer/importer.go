// Package importer reads landmark catalogs from GeoJSON.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultBuffer is the half-side in meters of the square given to point features.
const DefaultBuffer = 15.0

var (
	ErrNotFeatureCollection = errors.New("not a GeoJSON FeatureCollection")
	ErrMissingID            = errors.New("feature has no id")
	ErrMissingName          = errors.New("feature has no name")
)

// Options control how features become landmarks.
type Options struct {
	City   string
	SRID   int     // 0 and 4326 are WGS84; 3857 is converted
	Buffer float64 // half-side for point features, DefaultBuffer when zero
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         any             `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// Skipped describes a feature that could not be imported.
type Skipped struct {
	Index int
	ID    string
	Err   error
}

// Result holds the landmarks read from a collection.
type Result struct {
	Landmarks []core.Landmark
	Skipped   []Skipped
}

// Read parses a FeatureCollection. Features that cannot be turned into a
// landmark are reported in Result.Skipped; only a malformed document is an error.
func Read(r io.Reader, opts Options) (Result, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return Result{}, fmt.Errorf("failed to decode GeoJSON: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return Result{}, ErrNotFeatureCollection
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}

	var res Result
	for i, f := range fc.Features {
		l, err := f.landmark(opts)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Index: i, ID: l.ID, Err: err})
			continue
		}
		res.Landmarks = append(res.Landmarks, l)
	}
	return res, nil
}

func (f feature) landmark(opts Options) (core.Landmark, error) {
	l := core.Landmark{
		ID:          f.id(),
		Name:        strings.TrimSpace(f.prop("name")),
		City:        opts.City,
		Rating:      core.DefaultRating,
		Uncertainty: core.DefaultRating,
	}
	if l.City == "" {
		l.City = f.prop("city")
	}
	if l.ID == "" {
		return l, ErrMissingID
	}
	if l.Name == "" {
		return l, ErrMissingName
	}

	g, err := geom.UnmarshalGeoJSON(f.Geometry)
	if err != nil {
		return l, fmt.Errorf("invalid geometry: %w", err)
	}

	var ring core.Ring
	if g.Type() == geom.TypePoint {
		pt, ok := g.AsPoint()
		if !ok {
			return l, errors.New("empty point")
		}
		xy, ok := pt.XY()
		if !ok {
			return l, errors.New("empty point")
		}
		center, err := geo.ToWGS84(xy.X, xy.Y, opts.SRID)
		if err != nil {
			return l, err
		}
		ring = geo.SquareFootprint(center, opts.Buffer)
	} else {
		raw, err := geo.RingFromGeometry(g)
		if err != nil {
			return l, err
		}
		if ring, err = reproject(raw, opts.SRID); err != nil {
			return l, err
		}
	}

	if !geo.ValidFootprint(ring) {
		return l, errors.New("degenerate footprint")
	}
	centroid, ok := geo.Centroid(ring)
	if !ok {
		return l, errors.New("footprint has no centroid")
	}
	l.Footprint = ring
	l.Centroid = centroid
	return l, nil
}

// reproject converts a ring read as x/y into WGS84. Rings read by
// geo.RingFromGeometry carry x in Lng and y in Lat.
func reproject(r core.Ring, srid int) (core.Ring, error) {
	if srid == 0 || srid == 4326 {
		return r, nil
	}
	out := make(core.Ring, 0, len(r))
	for _, p := range r {
		ll, err := geo.ToWGS84(p.Lng, p.Lat, srid)
		if err != nil {
			return nil, err
		}
		out = append(out, ll)
	}
	return out, nil
}

// id prefers the feature id and falls back to the OSM "@id" property.
func (f feature) id() string {
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return f.prop("@id")
}

func (f feature) prop(key string) string {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
