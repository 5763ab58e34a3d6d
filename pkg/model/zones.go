/*
	Copyright 2026 OpenVelo
*/

package model

import (
	"errors"
	"fmt"
)

var ErrZoneBoundaries = errors.New("zone boundaries must be strictly increasing")

// ZoneTable maps a metric value to a training zone. Boundaries are the
// lower bounds of each zone; zone i covers [Boundaries[i], Boundaries[i+1])
// and the top zone is unbounded.
type ZoneTable struct {
	Boundaries []float64
}

// NewZoneTable validates the boundaries and returns a table with
// len(boundaries) zones.
func NewZoneTable(boundaries []float64) (ZoneTable, error) {
	if len(boundaries) == 0 {
		return ZoneTable{}, fmt.Errorf("%w: no boundaries given", ErrZoneBoundaries)
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return ZoneTable{}, fmt.Errorf("%w: %v", ErrZoneBoundaries, boundaries)
		}
	}
	return ZoneTable{Boundaries: boundaries}, nil
}

// NumZones returns the number of zones.
func (t ZoneTable) NumZones() int { return len(t.Boundaries) }

// ZoneOf returns the zone index for v using closed-open interval
// semantics. Values below the first boundary map to zone 0.
func (t ZoneTable) ZoneOf(v float64) int {
	for i := len(t.Boundaries) - 1; i > 0; i-- {
		if v >= t.Boundaries[i] {
			return i
		}
	}
	return 0
}
