package observer

import (
	"math"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/integrators"
)

// Order is the length of the observer's integral chain.
type Order int

const (
	Order2 Order = 2
	Order3 Order = 3
	Order4 Order = 4
)

func (o Order) Valid() bool {
	return o >= Order2 && o <= Order4
}

const DefaultBandwidth = 100.0

type Params struct {
	Order     Order
	Bandwidth float64
	// Gains overrides pole placement when non-empty. Length must equal Order.
	Gains     []float64
	PolePairs float64
	Inertia   float64
	Period    float64
}

func (p Params) Validate() error {
	switch {
	case !p.Order.Valid():
		return dynamo.NewConfigurationError("observer.order", "must be 2, 3 or 4, got %d", p.Order)
	case len(p.Gains) != 0 && len(p.Gains) != int(p.Order):
		return dynamo.NewConfigurationError("observer.gains", "need %d gains for order %d, got %d", p.Order, p.Order, len(p.Gains))
	case len(p.Gains) == 0 && p.Bandwidth <= 0:
		return dynamo.NewConfigurationError("observer.bandwidth", "must be positive, got %g", p.Bandwidth)
	case p.PolePairs <= 0 || p.Inertia <= 0:
		return dynamo.NewConfigurationError("machine.inertia", "observer needs positive pole pairs and inertia")
	case p.Period <= 0:
		return dynamo.NewConfigurationError("timing.control_period", "must be positive, got %g", p.Period)
	}
	return nil
}

// PlaceGains puts every pole of the error dynamics at -bandwidth.
func PlaceGains(order Order, bandwidth, polePairs, inertia float64) []float64 {
	w := bandwidth
	k := inertia / polePairs
	switch order {
	case Order2:
		return []float64{2 * w, w * w}
	case Order3:
		return []float64{3 * w, 3 * w * w, w * w * w * k}
	case Order4:
		return []float64{4 * w, 6 * w * w, 4 * w * w * w * k, w * w * w * w * k}
	}
	return nil
}

// Observer estimates position, speed and disturbance torque from a
// position measurement and the electromagnetic torque.
type Observer struct {
	Params
	ell   [4]float64
	x     dynamo.State
	dx    dynamo.State
	u     dynamo.Control
	integ *integrators.RK4

	// Error is the wrapped angle error seen at the last update.
	Error float64
}

func New(p Params) (*Observer, error) {
	if p.Bandwidth == 0 && len(p.Gains) == 0 {
		p.Bandwidth = DefaultBandwidth
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	gains := p.Gains
	if len(gains) == 0 {
		gains = PlaceGains(p.Order, p.Bandwidth, p.PolePairs, p.Inertia)
	}
	o := &Observer{
		Params: p,
		x:      make(dynamo.State, p.Order),
		dx:     make(dynamo.State, p.Order),
		u:      make(dynamo.Control, 2),
		integ:  integrators.NewRK4(),
	}
	copy(o.ell[:], gains)
	return o, nil
}

func (o *Observer) StateDim() int   { return int(o.Order) }
func (o *Observer) ControlDim() int { return 2 }

// Derive evaluates the observer for u = [measured angle, Tem].
func (o *Observer) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	e := dynamo.AngleDiff(u[0], x[0])
	drive := u[1]
	if o.Order >= Order3 {
		drive += x[2]
	}
	o.dx[0] = o.ell[0]*e + x[1]
	o.dx[1] = o.ell[1]*e + drive*o.PolePairs/o.Inertia
	if o.Order >= Order3 {
		o.dx[2] = o.ell[2] * e
		if o.Order == Order4 {
			o.dx[2] += x[3]
			o.dx[3] = o.ell[3] * e
		}
	}
	return o.dx
}

// Update advances one controller period with the electrical angle thetaMeas.
func (o *Observer) Update(thetaMeas, tem float64) {
	o.Error = dynamo.AngleDiff(thetaMeas, o.x[0])
	o.u[0], o.u[1] = thetaMeas, tem
	o.integ.StepInto(o.x, o, o.x, o.u, 0, o.Period)
	o.x[0] = dynamo.WrapPi(o.x[0])
}

// Theta is the estimated electrical angle in (-pi, pi].
func (o *Observer) Theta() float64 { return o.x[0] }

// Omega is the estimated electrical speed [rad/s].
func (o *Observer) Omega() float64 { return o.x[1] }

// Disturbance is the estimated load torque acting on the rotor, zero below order 3.
func (o *Observer) Disturbance() float64 {
	if o.Order < Order3 {
		return 0
	}
	return o.x[2]
}

func (o *Observer) Coefficients() []float64 {
	return append([]float64(nil), o.ell[:o.Order]...)
}

func (o *Observer) State() dynamo.State { return o.x }

func (o *Observer) Finite() bool { return o.x.IsValid() && !math.IsNaN(o.Error) }
