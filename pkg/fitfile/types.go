/*
	Copyright 2026 OpenVelo
*/

// Package fitfile serializes a session incrementally into a FIT
// activity file and reads such files back. The FIT header/CRC pair
// doubles as the completeness trailer: a file without a finalized
// header is an orphan from an unclean shutdown.
package fitfile

import (
	"time"

	"github.com/openvelo/ride-engine/pkg/model"
)

// TickRecord is the channel data of one aggregation interval. Nil
// pointers mean "no data this tick" and are encoded as FIT invalid
// values, never as zero.
type TickRecord struct {
	Timestamp    time.Time
	Power        *uint16
	HeartRate    *uint8
	Cadence      *uint8
	SpeedMps     *float64
	DistanceM    *float64
	AltitudeM    *float64
	TemperatureC *int8
	Position     *model.GeoPoint
}

// LapRecord summarizes one completed lap.
type LapRecord struct {
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	DistanceM    float64
	AvgPower     *uint16
	MaxPower     *uint16
	AvgHeartRate *uint8
	MaxHeartRate *uint8
	AvgCadence   *uint8
	MaxCadence   *uint8
}

// SessionSummary is written as trailer when the session finalizes.
type SessionSummary struct {
	Start          time.Time
	End            time.Time
	TotalElapsed   time.Duration
	MovingDuration time.Duration
	DistanceM      float64
	Calories       float64
	AvgPower       *uint16
	MaxPower       *uint16
	AvgHeartRate   *uint8
	MaxHeartRate   *uint8
	NumLaps        int
}

// Activity is the decoded content of a finalized activity file.
type Activity struct {
	Created time.Time
	Ticks   []TickRecord
	Laps    []LapRecord
	Summary *SessionSummary
}

func uint16Ptr(v uint16) *uint16    { return &v }
func uint8Ptr(v uint8) *uint8       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func int8Ptr(v int8) *int8          { return &v }
