/*
	Copyright 2026 OpenVelo
*/

package fitfile

import (
	"fmt"
	"os"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/basetype"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/openvelo/ride-engine/pkg/model"
)

const semicirclesToDegrees = 180.0 / 2147483648.0

// ReadActivity parses a finalized activity file without any knowledge
// of the encoder that produced it.
func ReadActivity(path string) (*Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := decoder.New(f)
	fitFile, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding activity file: %w", err)
	}

	ret := &Activity{}
	for i := range fitFile.Messages {
		mesg := fitFile.Messages[i]
		switch mesg.Num {
		case typedef.MesgNumFileId:
			fileID := mesgdef.NewFileId(&mesg)
			ret.Created = fileID.TimeCreated
		case typedef.MesgNumRecord:
			ret.Ticks = append(ret.Ticks, tickFromMesg(mesgdef.NewRecord(&mesg)))
		case typedef.MesgNumLap:
			ret.Laps = append(ret.Laps, lapFromMesg(mesgdef.NewLap(&mesg)))
		case typedef.MesgNumSession:
			ret.Summary = summaryFromMesg(mesgdef.NewSession(&mesg))
		}
	}
	return ret, nil
}

func tickFromMesg(rec *mesgdef.Record) TickRecord {
	ret := TickRecord{Timestamp: rec.Timestamp}
	if rec.Power != basetype.Uint16Invalid {
		ret.Power = uint16Ptr(rec.Power)
	}
	if rec.HeartRate != basetype.Uint8Invalid {
		ret.HeartRate = uint8Ptr(rec.HeartRate)
	}
	if rec.Cadence != basetype.Uint8Invalid {
		ret.Cadence = uint8Ptr(rec.Cadence)
	}
	if rec.EnhancedSpeed != basetype.Uint32Invalid {
		ret.SpeedMps = float64Ptr(float64(rec.EnhancedSpeed) / 1000.0)
	}
	if rec.Distance != basetype.Uint32Invalid {
		ret.DistanceM = float64Ptr(float64(rec.Distance) / 100.0)
	}
	if rec.EnhancedAltitude != basetype.Uint32Invalid {
		ret.AltitudeM = float64Ptr(float64(rec.EnhancedAltitude)/5.0 - 500.0)
	}
	if rec.Temperature != basetype.Sint8Invalid {
		ret.TemperatureC = int8Ptr(rec.Temperature)
	}
	if rec.PositionLat != basetype.Sint32Invalid &&
		rec.PositionLong != basetype.Sint32Invalid {
		ret.Position = &model.GeoPoint{
			Lat: float64(rec.PositionLat) * semicirclesToDegrees,
			Lon: float64(rec.PositionLong) * semicirclesToDegrees,
		}
	}
	return ret
}

func lapFromMesg(lap *mesgdef.Lap) LapRecord {
	ret := LapRecord{
		Start:     lap.StartTime,
		End:       lap.Timestamp,
		Duration:  time.Duration(lap.TotalElapsedTime) * time.Millisecond,
		DistanceM: float64(lap.TotalDistance) / 100.0,
	}
	if lap.AvgPower != basetype.Uint16Invalid {
		ret.AvgPower = uint16Ptr(lap.AvgPower)
	}
	if lap.MaxPower != basetype.Uint16Invalid {
		ret.MaxPower = uint16Ptr(lap.MaxPower)
	}
	if lap.AvgHeartRate != basetype.Uint8Invalid {
		ret.AvgHeartRate = uint8Ptr(lap.AvgHeartRate)
	}
	if lap.MaxHeartRate != basetype.Uint8Invalid {
		ret.MaxHeartRate = uint8Ptr(lap.MaxHeartRate)
	}
	if lap.AvgCadence != basetype.Uint8Invalid {
		ret.AvgCadence = uint8Ptr(lap.AvgCadence)
	}
	if lap.MaxCadence != basetype.Uint8Invalid {
		ret.MaxCadence = uint8Ptr(lap.MaxCadence)
	}
	return ret
}

func summaryFromMesg(s *mesgdef.Session) *SessionSummary {
	ret := &SessionSummary{
		Start:          s.StartTime,
		End:            s.Timestamp,
		TotalElapsed:   time.Duration(s.TotalElapsedTime) * time.Millisecond,
		MovingDuration: time.Duration(s.TotalTimerTime) * time.Millisecond,
		DistanceM:      float64(s.TotalDistance) / 100.0,
		NumLaps:        int(s.NumLaps),
	}
	if s.TotalCalories != basetype.Uint16Invalid {
		ret.Calories = float64(s.TotalCalories)
	}
	if s.AvgPower != basetype.Uint16Invalid {
		ret.AvgPower = uint16Ptr(s.AvgPower)
	}
	if s.MaxPower != basetype.Uint16Invalid {
		ret.MaxPower = uint16Ptr(s.MaxPower)
	}
	if s.AvgHeartRate != basetype.Uint8Invalid {
		ret.AvgHeartRate = uint8Ptr(s.AvgHeartRate)
	}
	if s.MaxHeartRate != basetype.Uint8Invalid {
		ret.MaxHeartRate = uint8Ptr(s.MaxHeartRate)
	}
	return ret
}
