package foc

import "math"

// FieldWeakening ramps a demagnetising d-axis current in with speed.
type FieldWeakening struct {
	StartRPM        float64
	FullRPM         float64
	MaxDemagCurrent float64
}

func DefaultFieldWeakening() FieldWeakening {
	return FieldWeakening{StartRPM: 450, FullRPM: 1000, MaxDemagCurrent: 60}
}

// DemagCurrent returns the d-axis command for a mechanical speed in rpm.
func (f FieldWeakening) DemagCurrent(rpm float64) float64 {
	speed := math.Abs(rpm)
	switch {
	case speed < f.StartRPM:
		return 0
	case speed < f.FullRPM && f.FullRPM > f.StartRPM:
		return (speed - f.StartRPM) / (f.FullRPM - f.StartRPM) * -f.MaxDemagCurrent
	default:
		return -f.MaxDemagCurrent
	}
}

// TorqueCurrentLimit is what is left of the current circle for the q axis.
func TorqueCurrentLimit(imax, id float64) float64 {
	if math.Abs(id) >= imax {
		return 0
	}
	return math.Sqrt(imax*imax - id*id)
}
