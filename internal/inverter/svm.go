package inverter

import (
	"github.com/san-kum/acmsim/internal/dynamo"
)

const (
	DefaultMinDuty = 0.04
	DefaultMaxDuty = 0.96
)

// SVM is a sector-based space-vector modulator for a two-level inverter.
type SVM struct {
	MinDuty float64
	MaxDuty float64
}

func NewSVM() SVM {
	return SVM{MinDuty: DefaultMinDuty, MaxDuty: DefaultMaxDuty}
}

func (s SVM) Validate() error {
	if s.MinDuty < 0 || s.MaxDuty > 1 || s.MinDuty >= s.MaxDuty {
		return dynamo.NewConfigurationError("inverter.min_duty", "need 0 <= min_duty < max_duty <= 1, got [%g, %g]", s.MinDuty, s.MaxDuty)
	}
	return nil
}

// Duties is the modulator output for one period.
type Duties struct {
	Sector int
	// T holds the normalised low-side on-times per phase.
	T [3]float64
	// D holds the high-side duty per phase, clamped to [MinDuty, MaxDuty].
	D [3]float64
}

// Generate maps the stationary-frame voltage command to phase duties.
// uzero adds a zero-sequence component.
func (s SVM) Generate(ualpha, ubeta, vdc, uzero float64) Duties {
	var out Duties
	if vdc == 0 {
		out.T = [3]float64{0.5, 0.5, 0.5}
		out.D = s.clampAll(out.T)
		return out
	}

	ta := ualpha / vdc
	tb := ubeta / vdc
	tz := uzero / vdc

	a := tb
	c := dynamo.Sqrt3*ta - tb
	b := -dynamo.Sqrt3*ta - tb

	sector := 0
	if a > 0 {
		sector = 1
	}
	if c > 0 {
		sector += 2
	}
	if b > 0 {
		sector += 4
	}
	out.Sector = sector

	x := dynamo.Sqrt3 * tb
	y := 1.5*ta + dynamo.HalfSqrt3*tb
	z := -1.5*ta + dynamo.HalfSqrt3*tb

	base := func(t1, t2 float64) float64 {
		return (1-t1-t2)*0.5 + tz*0.5
	}

	var pa, pb, pc float64
	switch sector {
	case 1:
		t1, t2 := z, y
		pb = base(t1, t2)
		pa = pb + t1
		pc = pa + t2
	case 2:
		t1, t2 := y, -x
		pa = base(t1, t2)
		pc = pa + t1
		pb = pc + t2
	case 3:
		t1, t2 := -z, x
		pa = base(t1, t2)
		pb = pa + t1
		pc = pb + t2
	case 4:
		t1, t2 := -x, z
		pc = base(t1, t2)
		pb = pc + t1
		pa = pb + t2
	case 5:
		t1, t2 := x, -y
		pb = base(t1, t2)
		pc = pb + t1
		pa = pc + t2
	case 6:
		t1, t2 := -y, -z
		pc = base(t1, t2)
		pa = pc + t1
		pb = pa + t2
	default:
		// zero vector
		pa, pb, pc = 0.5, 0.5, 0.5
	}

	out.T = [3]float64{pa, pb, pc}
	out.D = s.clampAll(out.T)
	return out
}

func (s SVM) clampAll(t [3]float64) [3]float64 {
	var d [3]float64
	for i, v := range t {
		d[i] = min(max(1-v, s.MinDuty), s.MaxDuty)
	}
	return d
}
