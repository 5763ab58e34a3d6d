/*
	Copyright 2026 OpenVelo
*/

// Package model holds the shared data types of the recording engine.
package model

import "time"

// Channel identifies one sensor data stream of a session.
type Channel uint8

const (
	ChannelHeartRate Channel = iota
	ChannelPower
	ChannelCadence
	ChannelSpeed
	ChannelGPS
	ChannelTemperature
	ChannelElevation
)

// Channels lists all known channels in a stable order.
var Channels = []Channel{
	ChannelHeartRate,
	ChannelPower,
	ChannelCadence,
	ChannelSpeed,
	ChannelGPS,
	ChannelTemperature,
	ChannelElevation,
}

func (c Channel) String() string {
	switch c {
	case ChannelHeartRate:
		return "heartrate"
	case ChannelPower:
		return "power"
	case ChannelCadence:
		return "cadence"
	case ChannelSpeed:
		return "speed"
	case ChannelGPS:
		return "gps"
	case ChannelTemperature:
		return "temperature"
	case ChannelElevation:
		return "elevation"
	default:
		return "unknown"
	}
}

// GeoPoint is a GPS position in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SensorEvent is one reading as delivered by the sensor transport.
// Value carries the scalar reading; Position is set for ChannelGPS only.
type SensorEvent struct {
	Channel   Channel   `json:"channel"`
	Value     float64   `json:"value"`
	Position  *GeoPoint `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
