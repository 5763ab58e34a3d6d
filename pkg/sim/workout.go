/*
	Copyright 2026 OpenVelo
*/

package sim

import (
	"fmt"
	"os"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type StepType string

const (
	StepSteady StepType = "steady"
	StepRamp   StepType = "ramp"
)

// Step is one segment of a structured workout. Power is given as
// percent of FTP so the same workout scales with the athlete.
type Step struct {
	Name      string   `yaml:"name"`
	Type      StepType `yaml:"type"`
	Seconds   int      `yaml:"seconds"`
	PowerLow  float64  `yaml:"powerLow"`
	PowerHigh float64  `yaml:"powerHigh"` // ignored for steady steps
}

// Workout is a sequence of FTP-relative steps.
type Workout struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// LoadWorkout reads a workout definition from a YAML file.
func LoadWorkout(path string) (*Workout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workout: %w", err)
	}
	var ret Workout
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parsing workout: %w", err)
	}
	if len(ret.Steps) == 0 {
		return nil, fmt.Errorf("workout %q has no steps", ret.Name)
	}
	for i := range ret.Steps {
		if ret.Steps[i].Type == "" {
			ret.Steps[i].Type = StepSteady
		}
		if ret.Steps[i].Seconds <= 0 {
			return nil, fmt.Errorf("step %d has no duration", i)
		}
	}
	return &ret, nil
}

// DefaultWorkout is a 2x4min sweet-spot session used when no workout
// file is given.
func DefaultWorkout() *Workout {
	return &Workout{
		Name: "sweet spot 2x4",
		Steps: []Step{
			{Name: "warmup", Type: StepRamp, Seconds: 300, PowerLow: 40, PowerHigh: 70},
			{Name: "ss 1", Type: StepSteady, Seconds: 240, PowerLow: 90},
			{Name: "recover", Type: StepSteady, Seconds: 120, PowerLow: 50},
			{Name: "ss 2", Type: StepSteady, Seconds: 240, PowerLow: 90},
			{Name: "cooldown", Type: StepRamp, Seconds: 300, PowerLow: 70, PowerHigh: 40},
		},
	}
}

// TotalDuration sums all step durations.
func (w *Workout) TotalDuration() time.Duration {
	return time.Duration(lo.SumBy(w.Steps, func(s Step) int { return s.Seconds })) * time.Second
}

// TargetAt returns the power target in watts at the given offset into
// the workout, and false once the workout is over.
func (w *Workout) TargetAt(ftp float64, elapsed time.Duration) (float64, bool) {
	remaining := elapsed
	for _, step := range w.Steps {
		stepDur := time.Duration(step.Seconds) * time.Second
		if remaining < stepDur {
			pct := step.PowerLow
			if step.Type == StepRamp {
				progress := remaining.Seconds() / stepDur.Seconds()
				pct = step.PowerLow + (step.PowerHigh-step.PowerLow)*progress
			}
			return pct / 100.0 * ftp, true
		}
		remaining -= stepDur
	}
	return 0, false
}
