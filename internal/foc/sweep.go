package foc

import "math"

// Sweep steps a sinusoidal excitation through increasing frequencies, one
// full period per frequency, and stops above the ceiling.
type Sweep struct {
	SpeedAmplitudeRPM float64
	CurrentAmplitude  float64
	StepHz            float64
	CeilingHz         float64

	Hz      float64
	lastEnd float64
	end     float64
}

func DefaultSweep() Sweep {
	return Sweep{SpeedAmplitudeRPM: 100, CurrentAmplitude: 1, StepHz: 1, CeilingHz: 100}
}

// Apply updates the speed and q-axis current commands for time t.
func (s *Sweep) Apply(t float64, cmd *Commands) {
	if t > s.end {
		s.Hz += s.StepHz
		s.lastEnd = s.end
		if s.Hz > 0 {
			s.end += 1 / s.Hz
		}
	}

	if s.Hz > s.CeilingHz {
		cmd.SpeedRPM = 0
		cmd.IQ = 0
		return
	}
	phase := math.Sin(2 * math.Pi * s.Hz * (t - s.lastEnd))
	cmd.SpeedRPM = cmd.SweepSpeedRPM * phase
	cmd.IQ = s.CurrentAmplitude * phase
}

// Done reports whether the sweep passed its ceiling.
func (s *Sweep) Done() bool {
	return s.Hz > s.CeilingHz
}
