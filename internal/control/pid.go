package control

import (
	"github.com/san-kum/acmsim/internal/dynamo"
)

// Integration selects how the integral term is discretized.
type Integration string

const (
	Tustin Integration = "tustin"
	Euler  Integration = "euler"
)

func (i Integration) Valid() bool {
	return i == Tustin || i == Euler
}

// PID is a discrete PID block with a band-limited derivative on the
// measurement and anti-windup by clamping the integrator.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Tau      float64
	OutLimit float64
	IntLimit float64
	T        float64
	Rule     Integration

	Setpoint    float64
	Measurement float64
	Out         float64

	integrator      float64
	prevError       float64
	differentiator  float64
	prevMeasurement float64
}

func NewPID(kp, ki, kd, tau, outLimit, intLimit, period float64) *PID {
	return &PID{
		Kp:       kp,
		Ki:       ki,
		Kd:       kd,
		Tau:      tau,
		OutLimit: outLimit,
		IntLimit: intLimit,
		T:        period,
		Rule:     Tustin,
	}
}

func (p *PID) Validate(name string) error {
	switch {
	case p.T <= 0:
		return dynamo.NewConfigurationError(name, "sample period must be positive, got %g", p.T)
	case p.OutLimit < 0 || p.IntLimit < 0:
		return dynamo.NewConfigurationError(name, "limits must be non-negative, got out=%g int=%g", p.OutLimit, p.IntLimit)
	case p.Tau < 0:
		return dynamo.NewConfigurationError(name, "derivative filter constant must be non-negative, got %g", p.Tau)
	case !p.Rule.Valid():
		return dynamo.NewConfigurationError(name, "unknown integration rule %q", p.Rule)
	}
	return nil
}

// Evaluate runs one sample and returns the output, bounded to ±OutLimit.
func (p *PID) Evaluate(setpoint, measurement float64) float64 {
	p.Setpoint = setpoint
	p.Measurement = measurement
	err := setpoint - measurement

	proportional := p.Kp * err

	if p.Rule == Euler {
		p.integrator += p.Ki * p.T * err
	} else {
		p.integrator += 0.5 * p.Ki * p.T * (err + p.prevError)
	}
	p.integrator = clamp(p.integrator, p.IntLimit)

	// derivative on measurement, hence the leading minus
	p.differentiator = -(2.0*p.Kd*(measurement-p.prevMeasurement) +
		(2.0*p.Tau-p.T)*p.differentiator) /
		(2.0*p.Tau + p.T)

	p.Out = clamp(proportional+p.integrator+p.differentiator, p.OutLimit)

	p.prevError = err
	p.prevMeasurement = measurement
	return p.Out
}

// SetOutLimit changes the live output limit. The current output is re-clamped.
func (p *PID) SetOutLimit(limit float64) {
	if limit < 0 {
		limit = 0
	}
	p.OutLimit = limit
	p.Out = clamp(p.Out, limit)
}

func (p *PID) Integrator() float64 {
	return p.integrator
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integrator = 0
	p.prevError = 0
	p.differentiator = 0
	p.prevMeasurement = 0
	p.Out = 0
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
