// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package geo provides the geographic primitives used by the alert
// engine: points, great-circle distance, and risk-zone geometry
// (polygons and circles) with containment tests.
//
// All functions are pure. Geometry validation happens once at
// zone-load time via Geometry.Validate; Contains assumes a valid
// geometry and never fails.
package geo

import (
	"math"
)

const (
	// earthRadiusM is the mean Earth radius in meters.
	earthRadiusM = 6371000.0

	// metersPerDegreeLat is the approximate north-south span of one
	// degree of latitude, used only for bounding-box padding.
	metersPerDegreeLat = 111320.0

	// coordEpsilon is the tolerance for coordinate comparisons.
	// Roughly centimeter precision, far below vessel GPS accuracy.
	coordEpsilon = 1e-7
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a finite coordinate with
// latitude in [-90, 90] and longitude in [-180, 180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return false
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// HaversineMeters returns the great-circle distance between two points
// in meters. Planar approximations accumulate real error at vessel
// ranges, so distance is always computed on the sphere.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Contains reports whether the point lies within the box, inclusive.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}
