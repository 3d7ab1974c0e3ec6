// Pelorus - Voyage Tracking and Maritime Risk-Zone Alerting
// Copyright 2026 Pelorus Maritime
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pelorus-maritime/pelorus

// Package zones holds the active risk-zone set and answers
// "which zones contain this point" queries.
//
// The zone set is read-mostly: Load builds a complete replacement set
// off to the side and swaps it in atomically, so queries never
// observe a partially updated set. Queries go through a spatial hash
// grid keyed by zone bounding boxes; candidates from the grid are
// confirmed with the precise geometry test.
package zones

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/pelorus-maritime/pelorus/internal/geo"
	"github.com/pelorus-maritime/pelorus/internal/metrics"
	"github.com/pelorus-maritime/pelorus/internal/models"
)

// cellSizeDegrees is the grid cell edge. 0.5 degrees is roughly 55km
// at the equator, a reasonable match for maritime zone sizes: small
// zones hit one cell, large zones a handful.
const cellSizeDegrees = 0.5

// cellKey addresses one grid cell.
type cellKey struct {
	latIdx int32
	lonIdx int32
}

// LoadResult reports the per-zone outcome of a Load call.
type LoadResult struct {
	ZoneID   string
	Accepted bool
	Err      error
}

// zoneSet is an immutable snapshot of the accepted zones plus the
// grid built over their bounding boxes.
type zoneSet struct {
	zones map[string]*models.RiskZone
	grid  map[cellKey][]*models.RiskZone
}

// Index is the engine's view of the active risk zones.
type Index struct {
	set atomic.Pointer[zoneSet]
}

// NewIndex creates an Index with an empty zone set.
func NewIndex() *Index {
	idx := &Index{}
	idx.set.Store(newZoneSet(nil))
	return idx
}

// Load replaces the active zone set. Each zone's geometry is
// validated; invalid zones are reported in the results and left out
// of the new set, valid zones are always installed. The swap is
// atomic: concurrent queries see either the old set or the complete
// new one.
func (i *Index) Load(zones []models.RiskZone) []LoadResult {
	results := make([]LoadResult, 0, len(zones))
	accepted := make([]models.RiskZone, 0, len(zones))

	for _, z := range zones {
		if err := z.Geometry.Validate(); err != nil {
			results = append(results, LoadResult{ZoneID: z.ID, Err: err})
			metrics.ZoneLoadRejected.Inc()
			continue
		}
		results = append(results, LoadResult{ZoneID: z.ID, Accepted: true})
		accepted = append(accepted, z)
	}

	i.set.Store(newZoneSet(accepted))
	metrics.ZonesActive.Set(float64(len(accepted)))
	return results
}

// Query returns every zone whose geometry contains p, whose enabled
// flag is set, and whose active window (if any) covers atTime.
func (i *Index) Query(p geo.Point, atTime time.Time) []*models.RiskZone {
	start := time.Now()
	defer func() { metrics.RecordZoneQuery(time.Since(start)) }()

	set := i.set.Load()
	candidates := set.grid[keyFor(p)]

	var hits []*models.RiskZone
	for _, z := range candidates {
		if !z.ActiveAt(atTime) {
			continue
		}
		if z.Geometry.Contains(p) {
			hits = append(hits, z)
		}
	}
	return hits
}

// Zone returns the zone by id from the current set, or nil.
func (i *Index) Zone(id string) *models.RiskZone {
	return i.set.Load().zones[id]
}

// Zones returns every zone in the current set, unordered.
func (i *Index) Zones() []*models.RiskZone {
	set := i.set.Load()
	out := make([]*models.RiskZone, 0, len(set.zones))
	for _, z := range set.zones {
		out = append(out, z)
	}
	return out
}

// Len returns the number of zones in the current set.
func (i *Index) Len() int {
	return len(i.set.Load().zones)
}

// newZoneSet builds the snapshot and its grid. Zones are registered
// in every cell their bounding box touches; the precise containment
// test at query time discards bounding-box false positives.
func newZoneSet(zones []models.RiskZone) *zoneSet {
	set := &zoneSet{
		zones: make(map[string]*models.RiskZone, len(zones)),
		grid:  make(map[cellKey][]*models.RiskZone),
	}

	for idx := range zones {
		z := &zones[idx]
		set.zones[z.ID] = z

		b := z.Geometry.Bounds()
		minLat, maxLat := cellIdx(b.MinLat), cellIdx(b.MaxLat)
		minLon, maxLon := cellIdx(b.MinLon), cellIdx(b.MaxLon)
		for la := minLat; la <= maxLat; la++ {
			for lo := minLon; lo <= maxLon; lo++ {
				// A bounding box spilling past lon +/-180 wraps onto
				// the far side of the antimeridian, so the raw index
				// is folded back onto the lon ring.
				k := cellKey{latIdx: la, lonIdx: wrapLonIdx(lo)}
				set.grid[k] = append(set.grid[k], z)
			}
		}
	}
	return set
}

// lonRingCells is the number of lon cells in one full wrap of the
// globe: 360 degrees / cellSizeDegrees.
const lonRingCells = int32(360 / cellSizeDegrees)

func cellIdx(deg float64) int32 {
	return int32(math.Floor(deg / cellSizeDegrees))
}

// wrapLonIdx folds a lon cell index into [-lonRingCells/2,
// lonRingCells/2), so indices for lon 180 and lon -180 land in the
// same cell.
func wrapLonIdx(idx int32) int32 {
	idx %= lonRingCells
	if idx >= lonRingCells/2 {
		idx -= lonRingCells
	} else if idx < -lonRingCells/2 {
		idx += lonRingCells
	}
	return idx
}

func keyFor(p geo.Point) cellKey {
	return cellKey{latIdx: cellIdx(p.Lat), lonIdx: wrapLonIdx(cellIdx(p.Lon))}
}
