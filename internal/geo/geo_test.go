// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

package geo

import (
	"errors"
	"math"
	"testing"
)

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"origin", Point{0, 0}, true},
		{"north pole", Point{90, 0}, true},
		{"south pole", Point{-90, 0}, true},
		{"date line", Point{0, 180}, true},
		{"lat too high", Point{95, 0}, false},
		{"lat too low", Point{-90.001, 0}, false},
		{"lon too high", Point{0, 180.5}, false},
		{"lon too low", Point{0, -181}, false},
		{"nan lat", Point{math.NaN(), 0}, false},
		{"inf lon", Point{0, math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Point
		wantM     float64
		tolerance float64
	}{
		{"same point", Point{51.5, -0.12}, Point{51.5, -0.12}, 0, 0.1},
		// One degree of latitude at the equator is about 111.2km.
		{"one degree lat", Point{0, 0}, Point{1, 0}, 111195, 200},
		// London to Paris, about 344km great-circle.
		{"london paris", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}, 343900, 2000},
		{"antipodal-ish", Point{0, 0}, Point{0, 180}, earthRadiusM * math.Pi, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("HaversineMeters = %.0f, want %.0f (±%.0f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{12.97, 77.59}
	b := Point{1.35, 103.82}
	if d1, d2 := HaversineMeters(a, b), HaversineMeters(b, a); math.Abs(d1-d2) > 1e-6 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestGeometryValidate(t *testing.T) {
	square := []Point{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

	tests := []struct {
		name    string
		g       Geometry
		wantErr error
	}{
		{"valid polygon", Geometry{Kind: KindPolygon, Vertices: square}, nil},
		{"valid circle", Geometry{Kind: KindCircle, Center: Point{1, 1}, RadiusM: 5000}, nil},
		{"two vertices", Geometry{Kind: KindPolygon, Vertices: square[:2]}, ErrTooFewVertices},
		{"no vertices", Geometry{Kind: KindPolygon}, ErrTooFewVertices},
		{"bad vertex", Geometry{Kind: KindPolygon, Vertices: []Point{{0, 0}, {95, 0}, {1, 1}}}, ErrInvalidVertex},
		{"zero radius", Geometry{Kind: KindCircle, Center: Point{1, 1}}, ErrNonPositiveRadius},
		{"negative radius", Geometry{Kind: KindCircle, Center: Point{1, 1}, RadiusM: -10}, ErrNonPositiveRadius},
		{"nan radius", Geometry{Kind: KindCircle, Center: Point{1, 1}, RadiusM: math.NaN()}, ErrNonPositiveRadius},
		{"bad center", Geometry{Kind: KindCircle, Center: Point{91, 0}, RadiusM: 100}, ErrInvalidCenter},
		{"unknown kind", Geometry{Kind: "ellipse"}, ErrUnknownKind},
		{"empty kind", Geometry{}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCircleContains(t *testing.T) {
	zone := Geometry{Kind: KindCircle, Center: Point{1.0, 1.0}, RadiusM: 5000}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{1.0, 1.0}, true},
		{"just inside", Point{1.0, 1.001}, true},
		{"well outside", Point{2.0, 2.0}, false},
		// 5000m is about 0.04496 degrees of longitude at lat 1.
		{"near edge inside", Point{1.0, 1.0449}, true},
		{"near edge outside", Point{1.0, 1.046}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := zone.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPolygonContains(t *testing.T) {
	square := Geometry{Kind: KindPolygon, Vertices: []Point{
		{0, 0}, {0, 10}, {10, 10}, {10, 0},
	}}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"interior", Point{5, 5}, true},
		{"outside", Point{15, 5}, false},
		{"exactly on edge", Point{0, 5}, true},
		{"exactly on vertex", Point{10, 10}, true},
		{"on right edge", Point{5, 10}, true},
		{"just outside edge", Point{-0.001, 5}, false},
		{"far away", Point{-45, 120}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := square.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestConcavePolygonContains(t *testing.T) {
	// L-shape: the notch at the top right is outside.
	lShape := Geometry{Kind: KindPolygon, Vertices: []Point{
		{0, 0}, {0, 10}, {5, 10}, {5, 5}, {10, 5}, {10, 0},
	}}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"lower arm", Point{7, 2}, true},
		{"upper arm", Point{2, 8}, true},
		{"inside notch", Point{8, 8}, false},
		{"corner of notch", Point{5, 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lShape.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestGeometryBounds(t *testing.T) {
	poly := Geometry{Kind: KindPolygon, Vertices: []Point{
		{-1, 2}, {3, -4}, {0, 5},
	}}
	b := poly.Bounds()
	if b.MinLat != -1 || b.MaxLat != 3 || b.MinLon != -4 || b.MaxLon != 5 {
		t.Errorf("polygon bounds = %+v", b)
	}

	circle := Geometry{Kind: KindCircle, Center: Point{1, 1}, RadiusM: 5000}
	cb := circle.Bounds()
	if !cb.Contains(Point{1, 1}) {
		t.Error("circle bounds must contain center")
	}
	// Every contained point must fall inside the bounding box.
	for _, p := range []Point{{1.0, 1.0449}, {1.044, 1.0}, {0.956, 1.0}} {
		if circle.Contains(p) && !cb.Contains(p) {
			t.Errorf("bounds miss contained point %v", p)
		}
	}
}
