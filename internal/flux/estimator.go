package flux

import (
	"math"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/integrators"
)

const (
	DefaultGain = 10.0

	marginGrowth = 1e-2
	marginDecay  = 2e-4
)

type Params struct {
	Resistance float64
	// LeakageInductance separates stator from rotor flux. Lq for both machine types.
	LeakageInductance float64
	Period            float64

	// Gain is the initial offset correction gain.
	Gain float64
	// RealtimeGain, when non-zero, normalises Gain by the counted cycle length.
	RealtimeGain    float64
	AdaptiveMargin  bool
	ResistanceScale float64
}

func (p Params) Validate() error {
	switch {
	case p.Period <= 0:
		return dynamo.NewConfigurationError("timing.control_period", "must be positive, got %g", p.Period)
	case p.LeakageInductance < 0:
		return dynamo.NewConfigurationError("machine.lq", "must be non-negative, got %g", p.LeakageInductance)
	case p.Gain < 0:
		return dynamo.NewConfigurationError("flux.gain", "must be non-negative, got %g", p.Gain)
	case p.ResistanceScale < 0:
		return dynamo.NewConfigurationError("flux.resistance_scale", "must be non-negative, got %g", p.ResistanceScale)
	}
	return nil
}

// Input is what the estimator sees at one controller tick.
type Input struct {
	// Voltage is the command applied during the past period.
	Voltage [2]float64
	// Current at the previous and at this tick.
	PrevCurrent [2]float64
	Current     [2]float64

	CommandedFlux float64
	// Saturate enables the flux clamp. It is off at zero commanded speed.
	Saturate bool
	Time     float64
}

// Estimator integrates the back-EMF to a stator flux and cancels the DC
// offset of the measured voltage from how long the rotor flux sits in
// saturation on either side.
type Estimator struct {
	Params

	x     dynamo.State
	dx    dynamo.State
	u     dynamo.Control
	integ *integrators.RK4
	in    Input

	Psi1     [2]float64
	Psi2     [2]float64
	Psi2Prev [2]float64

	LastMin [2]float64
	LastMax [2]float64

	SatMax    [2]float64
	SatMin    [2]float64
	MaxSatMax [2]float64
	MaxSatMin [2]float64
	satMaxReg [2]float64
	satMinReg [2]float64

	ExtraLimit float64

	// the four offset formulations, computed per half-cycle
	RawLPF        [2]float64
	Increment     [2]float64
	Correction    [2]float64
	Direct        [2]float64
	SatTimeOffset [2]float64
	Sign          [2]float64

	Dt     [2]float64
	DtLast [2]float64

	countPos   [2]float64
	countNeg   [2]float64
	posInCount [2]float64
	negInCount [2]float64
	CyclesPos  int
	CyclesNeg  int

	GainOffset float64

	falling [2]crossing
	rising  [2]crossing

	Cos, Sin float64
}

func New(p Params) (*Estimator, error) {
	if p.ResistanceScale == 0 {
		p.ResistanceScale = 1
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Estimator{
		Params:     p,
		x:          make(dynamo.State, 4),
		dx:         make(dynamo.State, 4),
		u:          make(dynamo.Control, 2),
		integ:      integrators.NewRK4(),
		GainOffset: p.Gain,
		Cos:        1,
	}
	for i := range e.Dt {
		e.Dt[i] = 1
		e.falling[i] = newCrossing(-1)
		e.rising[i] = newCrossing(+1)
	}
	return e, nil
}

func (e *Estimator) StateDim() int   { return 4 }
func (e *Estimator) ControlDim() int { return 2 }

// Derive is the flux ODE. t runs from 0 to Period within one update and
// selects the interpolated current.
func (e *Estimator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	frac := t / e.Period
	r := e.Resistance * e.ResistanceScale
	for i := 0; i < 2; i++ {
		cur := e.in.PrevCurrent[i] + frac*(e.in.Current[i]-e.in.PrevCurrent[i])
		e.dx[i] = u[i] - r*cur - x[2+i]
	}
	e.dx[2], e.dx[3] = 0, 0
	return e.dx
}

// Update runs one controller tick and returns the rotor flux direction.
func (e *Estimator) Update(in Input) (cos, sin float64) {
	e.in = in
	ts := e.Period
	lq := e.LeakageInductance

	e.u[0], e.u[1] = in.Voltage[0], in.Voltage[1]
	e.integ.StepInto(e.x, e, e.x, e.u, 0, ts)
	e.Psi1[0], e.Psi1[1] = e.x[0], e.x[1]

	limit := in.CommandedFlux + e.ExtraLimit
	for i := 0; i < 2; i++ {
		e.Psi2[i] = e.Psi1[i] - lq*in.Current[i]

		if in.Saturate {
			switch {
			case e.Psi2[i] > limit:
				e.Psi2[i] = limit
				e.SatMax[i] += ts
			case e.Psi2[i] < -limit:
				e.Psi2[i] = -limit
				e.SatMin[i] += ts
			default:
				e.SatMax[i] = decay(e.SatMax[i], ts)
				e.SatMin[i] = decay(e.SatMin[i], ts)
			}
		}
		e.Correction[i] = e.SatMax[i] - e.SatMin[i]
		e.MaxSatMax[i] = math.Max(e.MaxSatMax[i], e.SatMax[i])
		e.MaxSatMin[i] = math.Max(e.MaxSatMin[i], e.SatMin[i])

		e.countSample(i)

		e.Psi1[i] = e.Psi2[i] + lq*in.Current[i]
		e.x[i] = e.Psi1[i]
	}

	for i := 0; i < 2; i++ {
		prev, curr := e.Psi2Prev[i], e.Psi2[i]

		if e.falling[i].step(prev, curr, in.Time) {
			e.onFalling(i)
		}
		e.falling[i].track(prev, curr)

		if e.rising[i].step(prev, curr, in.Time) {
			e.onRising(i)
		}
		e.rising[i].track(prev, curr)
	}

	e.GainOffset = e.Gain
	if e.RealtimeGain != 0 {
		counted := e.negInCount[0] + e.posInCount[0] + e.negInCount[1] + e.posInCount[1]
		if counted > 0 {
			e.GainOffset = e.RealtimeGain * e.Gain / (counted * ts)
		}
	}
	for i := 0; i < 2; i++ {
		e.x[2+i] += e.GainOffset * ts * e.Correction[i]
	}

	e.Psi2Prev = e.Psi2

	// a zero flux has no direction; hold the last frame so the drive can
	// still inject voltage and build flux
	if ampl := math.Hypot(e.Psi2[0], e.Psi2[1]); ampl != 0 {
		e.Cos = e.Psi2[0] / ampl
		e.Sin = e.Psi2[1] / ampl
	}
	return e.Cos, e.Sin
}

func (e *Estimator) countSample(i int) {
	switch {
	case e.Psi2[i] > 0:
		e.countPos[i]++
		if e.countNeg[i] != 0 {
			e.negInCount[i] = e.countNeg[i]
			e.countNeg[i] = 0
		}
	case e.Psi2[i] < 0:
		e.countNeg[i]++
		if e.countPos[i] != 0 {
			e.posInCount[i] = e.countPos[i]
			e.countPos[i] = 0
		}
	}
}

func (e *Estimator) halfCycleTerms(i int, dt float64) {
	e.DtLast[i] = e.Dt[i]
	e.Dt[i] = dt

	sum := e.Dt[i] + e.DtLast[i]
	mid := 0.5 * (e.falling[i].extremum + e.rising[i].extremum)
	if sum != 0 {
		e.RawLPF[i] = mid / sum
	}
	e.Increment[i] = 0
	if div := sum - (e.SatMax[i] + e.SatMin[i]); div != 0 {
		e.Increment[i] = mid / div
	}
	e.Correction[i] = e.SatMax[i] - e.SatMin[i]
	if e.CyclesNeg+e.CyclesPos > 4 {
		e.Direct[i] += e.Increment[i]
	}
}

// onFalling handles a confirmed positive-to-negative crossing: the positive
// half-cycle just ended.
func (e *Estimator) onFalling(i int) {
	e.CyclesNeg++
	e.LastMax[i] = e.rising[i].extremum
	e.rising[i].reset()

	e.halfCycleTerms(i, e.falling[i].period())
	e.Sign[i] = -1

	e.SatTimeOffset[i] = e.MaxSatMax[i] - e.MaxSatMin[i]
	e.MaxSatMax[i], e.MaxSatMin[i] = 0, 0

	e.falling[i].extremum = 0
	e.LastMin[i] = 0

	if e.AdaptiveMargin {
		e.satMinReg[i] = e.SatMin[i]
		e.adaptMargin(i)
		e.satMaxReg[i] = 0
	}
	e.SatMin[i] = 0
}

func (e *Estimator) onRising(i int) {
	e.CyclesPos++
	e.LastMin[i] = e.falling[i].extremum
	e.falling[i].reset()

	e.halfCycleTerms(i, e.rising[i].period())
	e.Sign[i] = 1

	e.rising[i].extremum = 0
	e.LastMax[i] = 0

	if e.AdaptiveMargin {
		e.satMaxReg[i] = e.SatMax[i]
		e.adaptMargin(i)
		e.satMinReg[i] = 0
	}
	e.SatMax[i] = 0
}

// adaptMargin widens the clamp when both sides saturated during the last
// cycle, and lets it relax otherwise.
func (e *Estimator) adaptMargin(i int) {
	both := e.satMaxReg[i] + e.satMinReg[i]
	if e.satMaxReg[i] > e.Period && e.satMinReg[i] > e.Period && e.Dt[i] != 0 {
		e.ExtraLimit += marginGrowth * both / e.Dt[i]
	} else {
		e.ExtraLimit -= marginDecay * e.Dt[i]
	}
	if e.ExtraLimit < 0 {
		e.ExtraLimit = 0
	}
}

// Offset is the estimated voltage offset per axis [V].
func (e *Estimator) Offset() [2]float64 {
	return [2]float64{e.x[2], e.x[3]}
}

// Min and Max are the running rotor flux extrema of the current half-cycle.
func (e *Estimator) Min() [2]float64 {
	return [2]float64{e.falling[0].extremum, e.falling[1].extremum}
}

func (e *Estimator) Max() [2]float64 {
	return [2]float64{e.rising[0].extremum, e.rising[1].extremum}
}

// Crossing reports the detector stages of one axis.
func (e *Estimator) Crossing(axis int) (falling, rising CrossingState) {
	return e.falling[axis].state, e.rising[axis].state
}

// State is the live integrator state [psi1 alpha, psi1 beta, uoff alpha, uoff beta].
func (e *Estimator) State() dynamo.State { return e.x }

func (e *Estimator) Finite() bool {
	return e.x.IsValid() && dynamo.Finite(e.Psi2[0], e.Psi2[1], e.ExtraLimit)
}

func decay(timer, ts float64) float64 {
	if timer > 0 {
		timer -= ts
		if timer < 0 {
			timer = 0
		}
	}
	return timer
}
