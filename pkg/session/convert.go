/*
	Copyright 2026 OpenVelo
*/

package session

import (
	"math"
	"time"

	"github.com/openvelo/ride-engine/pkg/fitfile"
	"github.com/openvelo/ride-engine/pkg/model"
)

// tickFromSnapshot maps the live aggregates onto one activity record.
// Snapshot.Current keeps the last reading of every channel forever, so
// freshness is checked per channel: a sensor silent for longer than
// staleAfter is written as no-data instead of repeating its reading.
func tickFromSnapshot(
	snap model.Snapshot, now time.Time, staleAfter time.Duration,
) fitfile.TickRecord {
	fresh := func(ch model.Channel) (float64, bool) {
		ts, ok := snap.LastSample[ch]
		if !ok || now.Sub(ts) > staleAfter {
			return 0, false
		}
		v, ok := snap.Current[ch]
		return v, ok
	}
	ret := fitfile.TickRecord{Timestamp: now}
	if v, ok := fresh(model.ChannelPower); ok {
		ret.Power = uint16Ptr(uint16(math.Round(v)))
	}
	if v, ok := fresh(model.ChannelHeartRate); ok {
		ret.HeartRate = uint8Ptr(uint8(math.Round(v)))
	}
	if v, ok := fresh(model.ChannelCadence); ok {
		ret.Cadence = uint8Ptr(uint8(math.Round(v)))
	}
	if v, ok := fresh(model.ChannelSpeed); ok {
		ret.SpeedMps = float64Ptr(v)
	}
	if v, ok := fresh(model.ChannelTemperature); ok {
		ret.TemperatureC = int8Ptr(int8(math.Round(v)))
	}
	if v, ok := fresh(model.ChannelElevation); ok {
		ret.AltitudeM = float64Ptr(v)
	}
	if snap.Totals.DistanceMeters > 0 {
		ret.DistanceM = float64Ptr(snap.Totals.DistanceMeters)
	}
	if snap.Position != nil {
		if ts, ok := snap.LastSample[model.ChannelGPS]; ok &&
			now.Sub(ts) <= staleAfter {
			pos := *snap.Position
			ret.Position = &pos
		}
	}
	return ret
}

func lapFromSummary(sum model.LapSummary) fitfile.LapRecord {
	ret := fitfile.LapRecord{
		Start:     sum.Start,
		End:       sum.End,
		Duration:  sum.Duration,
		DistanceM: sum.Distance,
	}
	if agg, ok := sum.Aggregates[model.ChannelPower]; ok {
		ret.AvgPower = uint16Ptr(uint16(math.Round(agg.Avg)))
		ret.MaxPower = uint16Ptr(uint16(math.Round(agg.Max)))
	}
	if agg, ok := sum.Aggregates[model.ChannelHeartRate]; ok {
		ret.AvgHeartRate = uint8Ptr(uint8(math.Round(agg.Avg)))
		ret.MaxHeartRate = uint8Ptr(uint8(math.Round(agg.Max)))
	}
	if agg, ok := sum.Aggregates[model.ChannelCadence]; ok {
		ret.AvgCadence = uint8Ptr(uint8(math.Round(agg.Avg)))
		ret.MaxCadence = uint8Ptr(uint8(math.Round(agg.Max)))
	}
	return ret
}

func summaryFromSnapshot(
	snap model.Snapshot, start, end time.Time, numLaps int,
) fitfile.SessionSummary {
	ret := fitfile.SessionSummary{
		Start:          start,
		End:            end,
		TotalElapsed:   end.Sub(start),
		MovingDuration: snap.Totals.Duration,
		DistanceM:      snap.Totals.DistanceMeters,
		Calories:       snap.Totals.Calories,
		NumLaps:        numLaps,
	}
	if agg, ok := snap.Advanced[model.ChannelPower]; ok {
		ret.AvgPower = uint16Ptr(uint16(math.Round(agg.Avg)))
		ret.MaxPower = uint16Ptr(uint16(math.Round(agg.Max)))
	}
	if agg, ok := snap.Advanced[model.ChannelHeartRate]; ok {
		ret.AvgHeartRate = uint8Ptr(uint8(math.Round(agg.Avg)))
		ret.MaxHeartRate = uint8Ptr(uint8(math.Round(agg.Max)))
	}
	return ret
}

func uint16Ptr(v uint16) *uint16    { return &v }
func uint8Ptr(v uint8) *uint8       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func int8Ptr(v int8) *int8          { return &v }
