package foc

import (
	"math"

	"github.com/san-kum/acmsim/internal/control"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/flux"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/observer"
	"go.uber.org/zap"
)

// DefaultInductionFlux is the rotor flux command of an induction machine when none is configured [Wb].
const DefaultInductionFlux = 0.9

type Params struct {
	// Machine is the controller's model of the motor.
	Machine       machine.Params
	Period        float64
	VelocityRatio int

	SpeedLoop      SpeedLoop
	DAxis          DAxisPolicy
	FrameSource    FrameSource
	SpeedSource    SpeedSource
	FluxEstimation FluxEstimation
	Excitation     Excitation
	Decoupling     bool

	// CommandedFlux of 0 selects KE for a PMSM and DefaultInductionFlux for an IM.
	CommandedFlux  float64
	FieldWeakening FieldWeakening
	Sweep          Sweep
	Flux           flux.Params
	Observer       observer.Params
}

type Regulators struct {
	Speed *control.PID
	ID    *control.PID
	IQ    *control.PID
}

// Measurement is what the controller samples at each tick.
type Measurement struct {
	IAlpha, IBeta float64
	// Theta is the encoder electrical angle, OmegaElec the encoder electrical speed.
	Theta     float64
	OmegaElec float64
}

// Controller is the digital side of the drive: estimation, the cascaded
// speed and current loops and the frame transforms.
type Controller struct {
	Params
	Regulators

	Cmd Commands

	Timebase float64

	Theta     float64
	Omega     float64
	OmegaSlip float64
	OmegaSyn  float64
	Cos, Sin  float64

	IAB     [2]float64
	IABPrev [2]float64
	IDQ     [2]float64
	CmdUDQ  [2]float64
	CmdUAB  [2]float64

	KA      float64
	Tem     float64
	CmdPsi  float64
	Imax    float64
	Counter int

	Estimator     *flux.Estimator
	SpeedObserver *observer.Observer

	sweep Sweep
	log   *zap.Logger
}

func New(p Params, regs Regulators, log *zap.Logger) (*Controller, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := p.Machine.Validate(); err != nil {
		return nil, err
	}
	if p.Period <= 0 {
		return nil, dynamo.NewConfigurationError("timing.control_period", "must be positive, got %g", p.Period)
	}
	if p.VelocityRatio < 1 {
		return nil, dynamo.NewConfigurationError("timing.velocity_loop_ratio", "must be at least 1, got %d", p.VelocityRatio)
	}
	if regs.Speed == nil || regs.ID == nil || regs.IQ == nil {
		return nil, dynamo.NewConfigurationError("regulators", "speed, d-axis and q-axis regulators are required")
	}
	named := []struct {
		field string
		pid   *control.PID
	}{
		{"regulators.speed", regs.Speed},
		{"regulators.current", regs.ID},
		{"regulators.current", regs.IQ},
	}
	for _, r := range named {
		if err := r.pid.Validate(r.field); err != nil {
			return nil, err
		}
	}
	if p.SpeedLoop == "" {
		p.SpeedLoop = SpeedClosed
	}
	if p.DAxis == "" {
		p.DAxis = DAxisZero
	}
	if p.FrameSource == "" {
		p.FrameSource = FrameMeasured
	}
	if p.SpeedSource == "" {
		p.SpeedSource = SpeedMeasured
	}
	if p.FluxEstimation == "" {
		p.FluxEstimation = FluxNone
	}

	c := &Controller{
		Params:     p,
		Regulators: regs,
		Cos:        1,
		KA:         p.Machine.KE,
		Imax:       math.Sqrt2 * p.Machine.RatedCurrent,
		Counter:    p.VelocityRatio - 1,
		sweep:      p.Sweep,
		log:        log,
	}
	c.Cmd.SweepSpeedRPM = p.Sweep.SpeedAmplitudeRPM

	c.CmdPsi = p.CommandedFlux
	if c.CmdPsi == 0 {
		c.CmdPsi = p.Machine.KE
		if p.Machine.Induction() {
			c.CmdPsi = DefaultInductionFlux
		}
	}

	if p.FluxEstimation == FluxSaturationTime {
		fp := p.Flux
		fp.Resistance = p.Machine.Resistance
		fp.LeakageInductance = p.Machine.Lq
		fp.Period = p.Period
		est, err := flux.New(fp)
		if err != nil {
			return nil, err
		}
		c.Estimator = est
	} else if p.FrameSource == FrameFlux {
		log.Warn("flux frame source without an estimator, using the measured angle",
			zap.String("field", "control.frame_source"))
		c.FrameSource = FrameMeasured
	}

	if p.SpeedSource == SpeedObserver {
		op := p.Observer
		op.PolePairs = p.Machine.PolePairs
		op.Inertia = p.Machine.Inertia
		op.Period = p.Period
		obs, err := observer.New(op)
		if err != nil {
			return nil, err
		}
		c.SpeedObserver = obs
	}
	return c, nil
}

// Tick runs one controller period and leaves the new voltage command in CmdUAB.
func (c *Controller) Tick(m Measurement) {
	if c.Excitation == ExcitationSweep {
		c.sweep.Apply(c.Timebase, &c.Cmd)
	}

	c.Timebase += c.Period
	c.IAB = [2]float64{m.IAlpha, m.IBeta}

	frameTheta := m.Theta
	c.Cos, c.Sin = math.Cos(m.Theta), math.Sin(m.Theta)
	if c.Estimator != nil {
		cos, sin := c.Estimator.Update(flux.Input{
			Voltage:       c.CmdUAB,
			PrevCurrent:   c.IABPrev,
			Current:       c.IAB,
			CommandedFlux: c.CmdPsi,
			Saturate:      c.Cmd.SpeedRPM != 0,
			Time:          c.Timebase,
		})
		if c.FrameSource == FrameFlux {
			c.Cos, c.Sin = cos, sin
			frameTheta = math.Atan2(sin, cos)
		}
	}
	c.Theta = dynamo.WrapPi(frameTheta)

	c.IDQ[0], c.IDQ[1] = dynamo.Park(c.IAB[0], c.IAB[1], c.Cos, c.Sin)
	mp := c.Machine
	c.KA = (mp.Ld-mp.Lq)*c.IDQ[0] + mp.KE
	c.Tem = mp.TorqueGain * mp.PolePairs * c.IDQ[1] * c.KA

	if c.SpeedObserver != nil {
		c.SpeedObserver.Update(c.Theta, c.Tem)
		c.Omega = c.SpeedObserver.Omega()
	} else {
		c.Omega = m.OmegaElec
	}
	c.IABPrev = c.IAB

	c.law()

	c.CmdUAB[0], c.CmdUAB[1] = dynamo.InvPark(c.CmdUDQ[0], c.CmdUDQ[1], c.Cos, c.Sin)
}

func (c *Controller) law() {
	mp := c.Machine
	setpoint := c.Cmd.SpeedRPM / 60 * dynamo.TwoPi * mp.PolePairs

	c.Counter++
	if c.Counter >= c.VelocityRatio {
		c.Counter = 0
		c.Speed.Evaluate(setpoint, c.Omega)
	}
	if c.SpeedLoop == SpeedClosed {
		c.Cmd.IQ = c.Speed.Out
	}

	if mp.Induction() {
		c.Cmd.ID = c.CmdPsi / (mp.Ld - mp.Lq)
		c.OmegaSlip = 0
		if c.KA != 0 {
			c.OmegaSlip = mp.RotorResistance * c.Cmd.IQ / c.KA
		}
	} else {
		c.OmegaSlip = 0
		switch c.DAxis {
		case DAxisZero:
			c.Cmd.ID = 0
		case DAxisFieldWeakening:
			rpm := c.Omega * 60 / (dynamo.TwoPi * mp.PolePairs)
			c.Cmd.ID = c.FieldWeakening.DemagCurrent(rpm)
			c.Speed.SetOutLimit(TorqueCurrentLimit(c.Imax, c.Cmd.ID))
			if c.SpeedLoop == SpeedClosed {
				c.Cmd.IQ = c.Speed.Out
			}
		}
	}
	c.OmegaSyn = c.Omega + c.OmegaSlip

	c.CmdUDQ[0] = c.ID.Evaluate(c.Cmd.ID, c.IDQ[0])
	c.CmdUDQ[1] = c.IQ.Evaluate(c.Cmd.IQ, c.IDQ[1])

	if c.Decoupling {
		limit := c.IQ.OutLimit
		c.CmdUDQ[0] = clamp(c.CmdUDQ[0]-c.OmegaSyn*mp.Lq*c.Cmd.IQ, limit)
		c.CmdUDQ[1] = clamp(c.CmdUDQ[1]+c.OmegaSyn*(c.KA+mp.Lq*c.Cmd.ID), limit)
	}
}

// SweepState exposes the live sweep.
func (c *Controller) SweepState() *Sweep {
	return &c.sweep
}

func (c *Controller) Finite() bool {
	if !dynamo.Finite(c.CmdUDQ[0], c.CmdUDQ[1], c.CmdUAB[0], c.CmdUAB[1], c.Omega, c.KA) {
		return false
	}
	if c.Estimator != nil && !c.Estimator.Finite() {
		return false
	}
	if c.SpeedObserver != nil && !c.SpeedObserver.Finite() {
		return false
	}
	return true
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
