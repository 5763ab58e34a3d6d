/*
	Copyright 2026 OpenVelo
*/

package model

import "time"

// Totals are the session-level accumulated values.
type Totals struct {
	DistanceMeters float64       `json:"distanceMeters"`
	Duration       time.Duration `json:"duration"` // moving time, pauses excluded
	Calories       float64       `json:"calories"`
}

// ZoneTimes holds the accumulated seconds per zone for the two
// zone-scored channels.
type ZoneTimes struct {
	Power     []float64 `json:"power"`
	HeartRate []float64 `json:"heartRate"`
}

// ChannelAggregates are the extended per-channel statistics.
type ChannelAggregates struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Snapshot is an immutable point-in-time view of the running session.
// A new snapshot replaces the old one; snapshots taken without state
// change in between are value-equal.
type Snapshot struct {
	Current map[Channel]float64 `json:"current"`
	// LastSample holds the timestamp of each channel's most recent
	// admitted sample. Current keeps the last reading of a silent
	// sensor; LastSample is how consumers tell silent from live.
	LastSample map[Channel]time.Time         `json:"lastSample,omitempty"`
	Position   *GeoPoint                     `json:"position,omitempty"`
	Totals     Totals                        `json:"totals"`
	Zones      ZoneTimes                     `json:"zones"`
	Advanced   map[Channel]ChannelAggregates `json:"advanced,omitempty"`
}

// LapSummary describes one completed lap.
type LapSummary struct {
	Index      int                           `json:"index"`
	Start      time.Time                     `json:"start"`
	End        time.Time                     `json:"end"`
	Duration   time.Duration                 `json:"duration"`
	Distance   float64                       `json:"distance"`
	Aggregates map[Channel]ChannelAggregates `json:"aggregates"`
}
