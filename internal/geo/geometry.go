// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package geo

import (
	"errors"
	"fmt"
	"math"
)

// Kind discriminates the geometry variants.
type Kind string

const (
	// KindPolygon is a closed polygon defined by its vertices.
	KindPolygon Kind = "polygon"

	// KindCircle is a center point with a radius in meters.
	KindCircle Kind = "circle"
)

// Geometry is a tagged variant: exactly one of the kind-specific
// payloads is populated, selected by Kind. Dispatch happens in a
// single switch per operation rather than through an interface
// hierarchy.
type Geometry struct {
	Kind Kind `json:"kind"`

	// Vertices defines the polygon when Kind == KindPolygon.
	// The ring is implicitly closed; the last vertex need not repeat
	// the first.
	Vertices []Point `json:"vertices,omitempty"`

	// Center and RadiusM define the circle when Kind == KindCircle.
	Center  Point   `json:"center,omitempty"`
	RadiusM float64 `json:"radius_m,omitempty"`
}

// Geometry configuration errors, detected at zone-load time.
var (
	ErrUnknownKind       = errors.New("geo: unknown geometry kind")
	ErrTooFewVertices    = errors.New("geo: polygon requires at least 3 vertices")
	ErrInvalidVertex     = errors.New("geo: polygon vertex out of range")
	ErrInvalidCenter     = errors.New("geo: circle center out of range")
	ErrNonPositiveRadius = errors.New("geo: circle radius must be positive")
)

// Validate checks the geometry's configuration. A polygon needs at
// least 3 in-range vertices; a circle needs an in-range center and a
// positive finite radius.
func (g Geometry) Validate() error {
	switch g.Kind {
	case KindPolygon:
		if len(g.Vertices) < 3 {
			return fmt.Errorf("%w: got %d", ErrTooFewVertices, len(g.Vertices))
		}
		for i, v := range g.Vertices {
			if !v.Valid() {
				return fmt.Errorf("%w: vertex %d (%v, %v)", ErrInvalidVertex, i, v.Lat, v.Lon)
			}
		}
		return nil
	case KindCircle:
		if !g.Center.Valid() {
			return fmt.Errorf("%w: (%v, %v)", ErrInvalidCenter, g.Center.Lat, g.Center.Lon)
		}
		if g.RadiusM <= 0 || math.IsNaN(g.RadiusM) || math.IsInf(g.RadiusM, 0) {
			return fmt.Errorf("%w: got %v", ErrNonPositiveRadius, g.RadiusM)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, g.Kind)
	}
}

// Contains reports whether the point lies inside the geometry.
// Boundary points count as contained for both variants: a vessel
// sitting exactly on a zone edge is in the zone.
//
// The geometry must have passed Validate; Contains does not re-check.
func (g Geometry) Contains(p Point) bool {
	switch g.Kind {
	case KindPolygon:
		return polygonContains(g.Vertices, p)
	case KindCircle:
		return HaversineMeters(g.Center, p) <= g.RadiusM
	default:
		return false
	}
}

// Bounds returns the axis-aligned bounding box of the geometry, used
// by the zone index's spatial grid. Circle bounds are padded by the
// radius converted to degrees at the center latitude.
func (g Geometry) Bounds() BoundingBox {
	switch g.Kind {
	case KindPolygon:
		b := BoundingBox{
			MinLat: math.Inf(1), MinLon: math.Inf(1),
			MaxLat: math.Inf(-1), MaxLon: math.Inf(-1),
		}
		for _, v := range g.Vertices {
			b.MinLat = math.Min(b.MinLat, v.Lat)
			b.MaxLat = math.Max(b.MaxLat, v.Lat)
			b.MinLon = math.Min(b.MinLon, v.Lon)
			b.MaxLon = math.Max(b.MaxLon, v.Lon)
		}
		return b
	case KindCircle:
		latDelta := g.RadiusM / metersPerDegreeLat
		// Meters per degree of longitude shrink with latitude; clamp
		// the cosine so polar zones degrade to a wide box instead of
		// dividing by zero.
		cosLat := math.Cos(g.Center.Lat * math.Pi / 180)
		if cosLat < 0.01 {
			cosLat = 0.01
		}
		lonDelta := g.RadiusM / (metersPerDegreeLat * cosLat)
		return BoundingBox{
			MinLat: g.Center.Lat - latDelta,
			MaxLat: g.Center.Lat + latDelta,
			MinLon: g.Center.Lon - lonDelta,
			MaxLon: g.Center.Lon + lonDelta,
		}
	default:
		return BoundingBox{}
	}
}

// polygonContains runs a ray-casting test with an inclusive boundary:
// a point on any edge or vertex is contained regardless of what the
// crossing count would say.
func polygonContains(vertices []Point, p Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		if pointOnSegment(vertices[i], vertices[(i+1)%n], p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// pointOnSegment reports whether p lies on segment ab within
// coordinate epsilon.
func pointOnSegment(a, b, p Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if math.Abs(cross) > coordEpsilon {
		return false
	}
	return p.Lat >= math.Min(a.Lat, b.Lat)-coordEpsilon &&
		p.Lat <= math.Max(a.Lat, b.Lat)+coordEpsilon &&
		p.Lon >= math.Min(a.Lon, b.Lon)-coordEpsilon &&
		p.Lon <= math.Max(a.Lon, b.Lon)+coordEpsilon
}
