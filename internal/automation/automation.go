package automation

import (
	"fmt"
	"os"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
	"gopkg.in/yaml.v3"
)

// Hook rewrites the operator commands at each controller tick.
type Hook interface {
	Apply(t float64, cmd *foc.Commands)
}

// HookFunc adapts a plain function to Hook.
type HookFunc func(t float64, cmd *foc.Commands)

func (f HookFunc) Apply(t float64, cmd *foc.Commands) { f(t, cmd) }

// Nop leaves the commands untouched.
var Nop Hook = HookFunc(func(float64, *foc.Commands) {})

// Segment sets any subset of the commands while t < Until.
type Segment struct {
	Until          float64  `yaml:"until"`
	SpeedRPM       *float64 `yaml:"speed_rpm,omitempty"`
	ID             *float64 `yaml:"id,omitempty"`
	LoadTorque     *float64 `yaml:"load_torque,omitempty"`
	SweepAmplitude *float64 `yaml:"sweep_amplitude_rpm,omitempty"`
}

func (s Segment) apply(cmd *foc.Commands) {
	if s.SpeedRPM != nil {
		cmd.SpeedRPM = *s.SpeedRPM
	}
	if s.ID != nil {
		cmd.ID = *s.ID
	}
	if s.LoadTorque != nil {
		cmd.LoadTorque = *s.LoadTorque
	}
	if s.SweepAmplitude != nil {
		cmd.SweepSpeedRPM = *s.SweepAmplitude
	}
}

// Schedule is a piecewise command profile. Only the first segment whose
// Until lies ahead of t applies; past the last segment nothing changes and
// earlier commands persist.
type Schedule []Segment

func (s Schedule) Apply(t float64, cmd *foc.Commands) {
	for _, seg := range s {
		if t < seg.Until {
			seg.apply(cmd)
			return
		}
	}
}

// Validate checks that segment bounds are strictly increasing.
func (s Schedule) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Until <= s[i-1].Until {
			return dynamo.NewConfigurationError(fmt.Sprintf("schedule[%d].until", i),
				"must be greater than %g, got %g", s[i-1].Until, s[i].Until)
		}
	}
	return nil
}

// LoadSchedule reads a yaml list of segments.
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Schedule
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Builtin returns the demonstration profile: speed steps in both
// directions, a load step, a d-axis current step and a sweep amplitude.
func Builtin() Schedule {
	return Schedule{
		{Until: 1.0, SpeedRPM: value(50)},
		{Until: 1.5, LoadTorque: value(2)},
		{Until: 2.0, SpeedRPM: value(200)},
		{Until: 3.0, SpeedRPM: value(-200)},
		{Until: 4.0, SpeedRPM: value(0)},
		{Until: 4.5, SpeedRPM: value(2000)},
		{Until: 5.0, ID: value(2)},
		{Until: 5.5, LoadTorque: value(0)},
		{Until: 6.0, SweepAmplitude: value(500)},
	}
}

func value(v float64) *float64 { return &v }
