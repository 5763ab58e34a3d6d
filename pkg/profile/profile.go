/*
	Copyright 2026 OpenVelo
*/

// Package profile loads the athlete profile and derives the zone tables
// used for time-in-zone scoring.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openvelo/ride-engine/pkg/model"
)

// Athlete holds the rider thresholds and physical data.
type Athlete struct {
	Name        string  `yaml:"name"`
	FTP         float64 `yaml:"ftp"`         // watts
	ThresholdHR float64 `yaml:"thresholdHr"` // bpm
	MaxHR       float64 `yaml:"maxHr"`       // bpm
	WeightKg    float64 `yaml:"weightKg"`
	BikeKg      float64 `yaml:"bikeKg"`
	Age         int     `yaml:"age"`
}

// defaults applied for missing values
const (
	defaultFTP    = 200.0
	defaultMaxHR  = 185.0
	defaultWeight = 75.0
	defaultBike   = 9.0
)

// Default returns a profile with safe fallback values.
func Default() Athlete {
	return Athlete{
		FTP:      defaultFTP,
		MaxHR:    defaultMaxHR,
		WeightKg: defaultWeight,
		BikeKg:   defaultBike,
	}
}

// Load reads an athlete profile from a YAML file, filling absent values
// with the defaults.
func Load(path string) (Athlete, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("reading profile: %w", err)
	}
	ret := Default()
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return Default(), fmt.Errorf("parsing profile: %w", err)
	}
	ret.applyDefaults()
	return ret, nil
}

// Save writes the profile as YAML.
func (a Athlete) Save(path string) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (a *Athlete) applyDefaults() {
	if a.FTP <= 0 {
		a.FTP = defaultFTP
	}
	if a.MaxHR <= 0 {
		a.MaxHR = defaultMaxHR
	}
	if a.WeightKg <= 0 {
		a.WeightKg = defaultWeight
	}
	if a.BikeKg <= 0 {
		a.BikeKg = defaultBike
	}
}

// power zone boundaries as fraction of FTP (7 zones)
var powerZoneFactors = []float64{0, 0.55, 0.76, 0.91, 1.06, 1.21, 1.51}

// heart-rate zone boundaries as fraction of threshold HR (5 zones)
var hrZoneFactors = []float64{0, 0.68, 0.84, 0.95, 1.06}

// PowerZones derives the 7-zone power table from FTP.
func (a Athlete) PowerZones() model.ZoneTable {
	bounds := make([]float64, len(powerZoneFactors))
	for i, f := range powerZoneFactors {
		bounds[i] = f * a.FTP
	}
	zt, _ := model.NewZoneTable(bounds)
	return zt
}

// HRZones derives the 5-zone heart-rate table. Threshold HR is
// preferred; without one it is estimated as 89% of max HR.
func (a Athlete) HRZones() model.ZoneTable {
	threshold := a.ThresholdHR
	if threshold <= 0 {
		threshold = a.MaxHR * 0.89
	}
	bounds := make([]float64, len(hrZoneFactors))
	for i, f := range hrZoneFactors {
		bounds[i] = f * threshold
	}
	zt, _ := model.NewZoneTable(bounds)
	return zt
}
