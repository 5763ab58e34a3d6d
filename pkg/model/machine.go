/*
	Copyright 2026 OpenVelo
*/

package model

// MachineClass identifies the kind of controllable exercise machine.
type MachineClass uint8

const (
	MachineBike MachineClass = iota
	MachineRower
	MachineElliptical
	MachineTreadmill
)

func (m MachineClass) String() string {
	switch m {
	case MachineBike:
		return "bike"
	case MachineRower:
		return "rower"
	case MachineElliptical:
		return "elliptical"
	case MachineTreadmill:
		return "treadmill"
	default:
		return "unknown"
	}
}

// ParseMachineClass maps a CLI/config value to a MachineClass.
// Unknown values fall back to bike.
func ParseMachineClass(s string) MachineClass {
	switch s {
	case "rower":
		return MachineRower
	case "elliptical":
		return MachineElliptical
	case "treadmill":
		return MachineTreadmill
	default:
		return MachineBike
	}
}

// Calibration holds the device-specific constants used to translate a
// torque requirement into a resistance level.
type Calibration struct {
	// TorquePerLevel is the torque delta (Nm) per resistance unit.
	TorquePerLevel float64
	// StandardCadence (rpm) is assumed when no usable cadence exists.
	StandardCadence float64
}

// Calibration returns the constants for the machine class. The variants
// are a closed set, new machine types have to be added here.
func (m MachineClass) Calibration() Calibration {
	switch m {
	case MachineRower:
		return Calibration{TorquePerLevel: 0.9, StandardCadence: 26}
	case MachineElliptical:
		return Calibration{TorquePerLevel: 0.6, StandardCadence: 60}
	case MachineTreadmill:
		return Calibration{TorquePerLevel: 1.2, StandardCadence: 160}
	default: // bike
		return Calibration{TorquePerLevel: 0.35, StandardCadence: 85}
	}
}

// ResistanceRange is the resistance interval advertised by a device.
type ResistanceRange struct {
	Min float64
	Max float64
}

// DefaultResistanceRange applies when a device does not advertise its
// supported range.
var DefaultResistanceRange = ResistanceRange{Min: 0, Max: 100}
