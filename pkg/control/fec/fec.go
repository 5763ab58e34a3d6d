/*
	Copyright 2026 OpenVelo
*/

// Package fec encodes machine control commands as ANT+ FE-C pages
// carried over BLE. The engine only emits values already clamped to the
// device range; this package turns them into wire-ready frames for the
// machine control transport.
package fec

import "encoding/binary"

// FE-C over BLE service/characteristic UUIDs.
const (
	ServiceUUID   = "6e40fec1-b5a3-f393-e0a9-e50e24dcca9e"
	CharReadUUID  = "6e40fec2-b5a3-f393-e0a9-e50e24dcca9e" // notify
	CharWriteUUID = "6e40fec3-b5a3-f393-e0a9-e50e24dcca9e" // write
)

// ANT+ framing constants.
const (
	SyncByte    = 0xA4
	MsgIDAck    = 0x4F
	DefaultChan = 0x05
)

// Data page numbers.
const (
	PageBasicResistance = 48 // 0x30
	PageTargetPower     = 49 // 0x31
	PageWindResistance  = 50 // 0x32
	PageTrackResistance = 51 // 0x33
	PageUserConfig      = 55 // 0x37
	PageGeneralFEData   = 16 // 0x10
	PageTrainerSpecific = 25 // 0x19
)

// Frame builds the 13-byte ANT+ message for a data page: sync, length,
// ack id, channel, page, 7 payload bytes, XOR checksum.
func Frame(page byte, payload [7]byte) []byte {
	msg := make([]byte, 13)
	msg[0] = SyncByte
	msg[1] = 0x09
	msg[2] = MsgIDAck
	msg[3] = DefaultChan
	msg[4] = page
	copy(msg[5:12], payload[:])

	var checksum byte
	for i := 0; i < 12; i++ {
		checksum ^= msg[i]
	}
	msg[12] = checksum
	return msg
}

// TargetPower encodes page 49 (ERG mode). Resolution 0.25 W.
func TargetPower(watts float64) []byte {
	raw := uint16(watts / 0.25)
	p := [7]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	binary.LittleEndian.PutUint16(p[5:7], raw)
	return Frame(PageTargetPower, p)
}

// BasicResistance encodes page 48. Resolution 0.5 % over 0..100 %.
func BasicResistance(percent float64) []byte {
	p := [7]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	p[6] = byte(percent / 0.5)
	return Frame(PageBasicResistance, p)
}

// TrackResistance encodes page 51 (simulation mode). Grade resolution
// 0.01 % with a 200 % offset, rolling resistance resolution 0.00005.
func TrackResistance(gradePercent, crr float64) []byte {
	rawGrade := uint16((gradePercent + 200.0) / 0.01)
	p := [7]byte{0xFF, 0xFF, 0xFF, 0xFF}
	binary.LittleEndian.PutUint16(p[4:6], rawGrade)
	p[6] = byte(crr / 0.00005)
	return Frame(PageTrackResistance, p)
}

// UserConfig encodes page 55 with rider and bike weight; some trainers
// need it before accepting resistance targets.
func UserConfig(riderWeightKg, bikeWeightKg float64) []byte {
	rider := uint16(riderWeightKg / 0.01) // resolution 0.01 kg
	bike := uint16(bikeWeightKg/0.05) & 0x0FFF

	p := [7]byte{}
	binary.LittleEndian.PutUint16(p[0:2], rider)
	p[2] = 0xFF
	p[3] = byte((bike&0x0F)<<4) | 0x0F
	p[4] = byte(bike >> 4)
	p[5] = byte(0.7 / 0.01) // wheel diameter 0.7 m
	p[6] = 0x00             // gear ratio: unused
	return Frame(PageUserConfig, p)
}

// DecodeTrainerData extracts power and cadence from a trainer-specific
// notification (page 25). Returns power -1 when the frame is not usable.
func DecodeTrainerData(data []byte) (power int16, cadence uint8) {
	if len(data) < 13 || data[0] != SyncByte {
		return -1, 0
	}
	if data[4] != PageTrainerSpecific {
		return -1, 0
	}
	cadence = data[6]
	combined := binary.LittleEndian.Uint16(data[9:11])
	power = int16(combined & 0x0FFF)
	return power, cadence
}
