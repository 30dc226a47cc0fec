package machine

import (
	"math"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/integrators"
)

// State vector indices.
const (
	IdxTheta = iota // mechanical position [rad]
	IdxOmega        // mechanical speed [rad/s]
	IdxKA           // active flux [Wb]
	IdxID           // d-axis current [A]
	IdxIQ           // q-axis current [A]
	StateDim
)

// Torque gains of the two Clarke transform conventions.
const (
	AmplitudeInvariantGain = 1.5
	PowerInvariantGain     = 1.0
)

type Params struct {
	PolePairs       float64
	RatedCurrent    float64
	Resistance      float64
	Ld              float64
	Lq              float64
	KE              float64
	RotorResistance float64
	Inertia         float64
	TorqueGain      float64
}

func (p Params) Induction() bool {
	return p.RotorResistance > 0
}

func (p Params) Validate() error {
	switch {
	case p.RotorResistance < 0:
		return dynamo.NewConfigurationError("machine.rotor_resistance", "must be >= 0, got %g", p.RotorResistance)
	case p.PolePairs <= 0:
		return dynamo.NewConfigurationError("machine.pole_pairs", "must be positive, got %g", p.PolePairs)
	case p.Ld <= 0 || p.Lq <= 0:
		return dynamo.NewConfigurationError("machine.ld", "inductances must be positive, got Ld=%g Lq=%g", p.Ld, p.Lq)
	case p.Inertia <= 0:
		return dynamo.NewConfigurationError("machine.inertia", "must be positive, got %g", p.Inertia)
	case p.Resistance < 0:
		return dynamo.NewConfigurationError("machine.resistance", "must be >= 0, got %g", p.Resistance)
	case p.Induction() && p.Ld == p.Lq:
		return dynamo.NewConfigurationError("machine.lq", "induction machine needs Ld > Lq (Ld-Lq is the magnetizing inductance)")
	case p.TorqueGain <= 0:
		return dynamo.NewConfigurationError("control.transform", "torque gain must be positive, got %g", p.TorqueGain)
	}
	return nil
}

// Machine is the electro-mechanical plant, integrated in the rotor flux frame.
type Machine struct {
	Params
	x     dynamo.State
	integ *integrators.RK4
	dx    dynamo.State
	u     dynamo.Control

	TLoad float64

	ThetaD    float64
	OmegaElec float64
	OmegaSlip float64
	OmegaSyn  float64
	Tem       float64
	Cos, Sin  float64
	IAlpha    float64
	IBeta     float64
	Ia, Ib    float64
	Ic        float64
	UAlpha    float64
	UBeta     float64
	Ud, Uq    float64
}

func New(p Params) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		Params: p,
		x:      make(dynamo.State, StateDim),
		integ:  integrators.NewRK4(),
		dx:     make(dynamo.State, StateDim),
		u:      make(dynamo.Control, 3),
	}
	m.x[IdxKA] = p.KE
	m.updateOutputs()
	return m, nil
}

func (m *Machine) StateDim() int   { return StateDim }
func (m *Machine) ControlDim() int { return 3 }

// State returns the live state vector.
func (m *Machine) State() dynamo.State { return m.x }

func (m *Machine) slip(x dynamo.State) float64 {
	if x[IdxKA] == 0 {
		return 0
	}
	return m.RotorResistance * x[IdxIQ] / x[IdxKA]
}

// Derive evaluates the plant ODE for u = [ud, uq, TLoad].
func (m *Machine) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	ud, uq, tl := u[0], u[1], u[2]
	ka, id, iq := x[IdxKA], x[IdxID], x[IdxIQ]

	slip := m.slip(x)
	syn := x[IdxOmega]*m.PolePairs + slip

	fx := m.dx
	if m.Induction() {
		fx[IdxKA] = m.RotorResistance*id - m.RotorResistance/(m.Ld-m.Lq)*ka
		fx[IdxID] = (ud - m.Resistance*id + syn*m.Lq*iq - fx[IdxKA]) / m.Lq
	} else {
		fx[IdxID] = (ud - m.Resistance*id + syn*m.Lq*iq) / m.Ld
		fx[IdxKA] = (m.Ld - m.Lq) * fx[IdxID]
	}
	fx[IdxIQ] = (uq - m.Resistance*iq - syn*m.Lq*id - syn*ka) / m.Lq

	tem := m.TorqueGain * m.PolePairs * ka * iq
	fx[IdxTheta] = x[IdxOmega] + slip/m.PolePairs
	fx[IdxOmega] = (tem - tl) / m.Inertia
	return fx
}

// Step applies the stationary-frame voltage (ualpha, ubeta) and load torque for dt.
// The voltage is rotated with the angle at the start of the step and held across stages.
func (m *Machine) Step(ualpha, ubeta, tload, dt float64) {
	m.UAlpha, m.UBeta = ualpha, ubeta
	m.TLoad = tload
	ud, uq := dynamo.Park(ualpha, ubeta, m.Cos, m.Sin)
	m.StepDQ(ud, uq, tload, dt)
}

// StepDQ integrates one step with the dq voltage held constant.
func (m *Machine) StepDQ(ud, uq, tload, dt float64) {
	m.Ud, m.Uq = ud, uq
	m.TLoad = tload

	m.u[0], m.u[1], m.u[2] = ud, uq, tload
	m.integ.StepInto(m.x, m, m.x, m.u, 0, dt)
	m.updateOutputs()
}

func (m *Machine) updateOutputs() {
	m.ThetaD = m.x[IdxTheta] * m.PolePairs
	m.OmegaElec = m.x[IdxOmega] * m.PolePairs
	m.OmegaSlip = m.slip(m.x)
	m.OmegaSyn = m.OmegaElec + m.OmegaSlip
	m.Tem = m.TorqueGain * m.PolePairs * m.x[IdxKA] * m.x[IdxIQ]

	m.Cos, m.Sin = math.Cos(m.ThetaD), math.Sin(m.ThetaD)
	m.IAlpha, m.IBeta = dynamo.InvPark(m.x[IdxID], m.x[IdxIQ], m.Cos, m.Sin)
	m.Ia, m.Ib, m.Ic = dynamo.InvClarke(m.IAlpha, m.IBeta)
}

func (m *Machine) ThetaMech() float64 { return m.x[IdxTheta] }
func (m *Machine) OmegaMech() float64 { return m.x[IdxOmega] }
func (m *Machine) KA() float64        { return m.x[IdxKA] }
func (m *Machine) ID() float64        { return m.x[IdxID] }
func (m *Machine) IQ() float64        { return m.x[IdxIQ] }

// SpeedRPM is the mechanical speed in revolutions per minute.
func (m *Machine) SpeedRPM() float64 {
	return m.x[IdxOmega] / dynamo.TwoPi * 60
}
