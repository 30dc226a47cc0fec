package foc

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/acmsim/internal/control"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"
)

const (
	ts  = 1e-4
	vdc = 300.0
)

func pmsmParams() machine.Params {
	return machine.Params{
		PolePairs:    4,
		RatedCurrent: 3,
		Resistance:   1.1,
		Ld:           5e-3,
		Lq:           6e-3,
		KE:           0.095,
		Inertia:      0.0006168,
		TorqueGain:   machine.AmplitudeInvariantGain,
	}
}

func inductionParams() machine.Params {
	return machine.Params{
		PolePairs:       2,
		RatedCurrent:    5,
		Resistance:      3,
		Ld:              0.4,
		Lq:              0.04,
		RotorResistance: 2.5,
		Inertia:         0.05,
		TorqueGain:      machine.AmplitudeInvariantGain,
	}
}

func regulators(speedLimit float64) Regulators {
	cur := vdc / dynamo.Sqrt3
	return Regulators{
		Speed: control.NewPID(0.034, 0.034*25, 0, 0, speedLimit, speedLimit, 5*ts),
		ID:    control.NewPID(18.85, 18.85*183.3, 0, 0, cur, cur, ts),
		IQ:    control.NewPID(18.85, 18.85*183.3, 0, 0, cur, cur, ts),
	}
}

func newController(t *testing.T, p Params) *Controller {
	t.Helper()
	if p.Period == 0 {
		p.Period = ts
	}
	if p.VelocityRatio == 0 {
		p.VelocityRatio = 5
	}
	c, err := New(p, regulators(3*math.Sqrt2*p.Machine.RatedCurrent), zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadParams(t *testing.T) {
	_, err := New(Params{Machine: pmsmParams(), Period: ts, VelocityRatio: 0}, regulators(1), nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	_, err = New(Params{Machine: pmsmParams(), Period: ts, VelocityRatio: 1}, Regulators{}, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	bad := pmsmParams()
	bad.RotorResistance = -1
	_, err = New(Params{Machine: bad, Period: ts, VelocityRatio: 1}, regulators(1), nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	_, err = New(Params{
		Machine: pmsmParams(), Period: ts, VelocityRatio: 1,
		SpeedSource: SpeedObserver, Observer: observer.Params{Order: 7},
	}, regulators(1), nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestVelocityLoopRunsOnFirstTickThenEveryCeiling(t *testing.T) {
	p := Params{Machine: pmsmParams(), Period: ts, VelocityRatio: 5}
	speed := control.NewPID(1, 0, 0, 0, 1000, 1000, 5*ts)
	regs := regulators(10)
	regs.Speed = speed
	c, err := New(p, regs, nil)
	require.NoError(t, err)

	perRPM := dynamo.TwoPi * 4 / 60
	c.Cmd.SpeedRPM = 60
	c.Tick(Measurement{})
	assert.InDelta(t, 60*perRPM, c.Cmd.IQ, 1e-12)
	assert.Equal(t, 0, c.Counter)

	c.Cmd.SpeedRPM = 120
	for k := 0; k < 4; k++ {
		c.Tick(Measurement{})
		assert.InDelta(t, 60*perRPM, c.Cmd.IQ, 1e-12, "tick %d", k+2)
	}
	c.Tick(Measurement{})
	assert.InDelta(t, 120*perRPM, c.Cmd.IQ, 1e-12)
	assert.InDelta(t, 6*ts, c.Timebase, 1e-15)
}

func TestOpenSpeedLoopKeepsCommandedCurrent(t *testing.T) {
	c := newController(t, Params{Machine: pmsmParams(), SpeedLoop: SpeedOpen})
	c.Cmd.IQ = 2
	c.Cmd.SpeedRPM = 500
	c.Tick(Measurement{})
	assert.Equal(t, 2.0, c.Cmd.IQ)
	assert.Greater(t, c.CmdUDQ[1], 0.0)
}

func TestFrameIsUnitRotation(t *testing.T) {
	c := newController(t, Params{Machine: pmsmParams()})
	for k := 0; k < 200; k++ {
		theta := float64(k) * 0.37
		c.Tick(Measurement{IAlpha: math.Cos(theta), IBeta: math.Sin(theta), Theta: theta})
		assert.InDelta(t, 1.0, c.Cos*c.Cos+c.Sin*c.Sin, 1e-12)
		assert.InDelta(t, 1.0, c.IDQ[0], 1e-9)
		assert.InDelta(t, 0.0, c.IDQ[1], 1e-9)
		assert.LessOrEqual(t, math.Abs(c.Theta), math.Pi)

		udq := math.Hypot(c.CmdUDQ[0], c.CmdUDQ[1])
		uab := math.Hypot(c.CmdUAB[0], c.CmdUAB[1])
		assert.InDelta(t, udq, uab, 1e-9)
	}
}

func TestControllerActiveFluxAndTorque(t *testing.T) {
	p := pmsmParams()
	c := newController(t, Params{Machine: p})
	c.Tick(Measurement{IAlpha: -1, IBeta: 2})
	assert.InDelta(t, (p.Ld-p.Lq)*-1+p.KE, c.KA, 1e-12)
	assert.InDelta(t, 1.5*p.PolePairs*2*c.KA, c.Tem, 1e-12)
}

func TestInductionFluxCommandAndSlip(t *testing.T) {
	p := inductionParams()
	c := newController(t, Params{Machine: p, SpeedLoop: SpeedOpen})
	assert.Equal(t, DefaultInductionFlux, c.CmdPsi)

	c.Cmd.IQ = 4
	c.Tick(Measurement{})
	assert.InDelta(t, 0.9/0.36, c.Cmd.ID, 1e-12)
	assert.Equal(t, 0.0, c.KA)
	assert.Equal(t, 0.0, c.OmegaSlip, "zero flux must not divide")

	c.Tick(Measurement{IAlpha: 2.5, OmegaElec: 10})
	assert.InDelta(t, 0.9, c.KA, 1e-12)
	assert.InDelta(t, 2.5*4/0.9, c.OmegaSlip, 1e-12)
	assert.InDelta(t, 10+c.OmegaSlip, c.OmegaSyn, 1e-12)
}

func TestFieldWeakeningLimitsTorqueCurrent(t *testing.T) {
	fw := FieldWeakening{StartRPM: 450, FullRPM: 1000, MaxDemagCurrent: 3}
	c := newController(t, Params{Machine: pmsmParams(), DAxis: DAxisFieldWeakening, FieldWeakening: fw})

	omega := 725.0 / 60 * dynamo.TwoPi * 4
	c.Cmd.SpeedRPM = 3000
	for k := 0; k < 50; k++ {
		c.Tick(Measurement{OmegaElec: omega})
	}
	assert.InDelta(t, -1.5, c.Cmd.ID, 1e-9)
	imax := math.Sqrt2 * 3
	assert.InDelta(t, math.Sqrt(imax*imax-1.5*1.5), c.Speed.OutLimit, 1e-9)
	assert.LessOrEqual(t, math.Abs(c.Cmd.IQ), c.Speed.OutLimit)
}

func TestFieldWeakeningCurve(t *testing.T) {
	fw := DefaultFieldWeakening()
	tests := []struct {
		rpm, id float64
	}{
		{0, 0}, {449, 0}, {725, -30}, {1000, -60}, {5000, -60}, {-725, -30},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.id, fw.DemagCurrent(tt.rpm), 1e-9, "rpm %g", tt.rpm)
	}

	assert.Equal(t, 0.0, TorqueCurrentLimit(4, -60))
	assert.Equal(t, 0.0, TorqueCurrentLimit(4, 4))
	assert.InDelta(t, 3.0, TorqueCurrentLimit(5, -4), 1e-12)
}

func TestDecouplingStaysWithinCurrentLoopLimit(t *testing.T) {
	c := newController(t, Params{Machine: pmsmParams(), Decoupling: true, SpeedLoop: SpeedOpen})
	c.Cmd.IQ = 4
	for k := 0; k < 100; k++ {
		c.Tick(Measurement{OmegaElec: 5000, Theta: float64(k) * 0.1})
		assert.LessOrEqual(t, math.Abs(c.CmdUDQ[0]), c.IQ.OutLimit)
		assert.LessOrEqual(t, math.Abs(c.CmdUDQ[1]), c.IQ.OutLimit)
	}
	assert.Equal(t, c.IQ.OutLimit, c.CmdUDQ[1])
}

func TestFluxFrameWithoutEstimatorWarns(t *testing.T) {
	core, logs := zapobserver.New(zapcore.WarnLevel)
	c, err := New(Params{Machine: pmsmParams(), Period: ts, VelocityRatio: 1, FrameSource: FrameFlux},
		regulators(1), zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, FrameMeasured, c.FrameSource)
	assert.Equal(t, 1, logs.FilterMessageSnippet("flux frame source").Len())
}

func TestFluxFrameUsesEstimator(t *testing.T) {
	c := newController(t, Params{
		Machine:        pmsmParams(),
		FluxEstimation: FluxSaturationTime,
		FrameSource:    FrameFlux,
	})
	require.NotNil(t, c.Estimator)
	assert.Equal(t, pmsmParams().Lq, c.Estimator.LeakageInductance)

	c.Cmd.SpeedRPM = 100
	c.Tick(Measurement{Theta: 1.0})
	assert.Equal(t, 1.0, c.Cos, "no flux yet, direction defaults to alpha")
	assert.Equal(t, 0.0, c.Sin)
	assert.Equal(t, 0.0, c.Theta)
	// the held frame still lets the current loop inject voltage
	assert.NotZero(t, c.CmdUAB[1])

	measured := newController(t, Params{Machine: pmsmParams(), FluxEstimation: FluxSaturationTime})
	measured.Tick(Measurement{Theta: 1.0})
	assert.InDelta(t, math.Cos(1.0), measured.Cos, 1e-15)
	assert.NotNil(t, measured.Estimator)
}

func TestObserverSpeedSource(t *testing.T) {
	c := newController(t, Params{
		Machine:     pmsmParams(),
		SpeedSource: SpeedObserver,
		Observer:    observer.Params{Order: observer.Order2, Bandwidth: 200},
	})
	require.NotNil(t, c.SpeedObserver)

	const omega = 150.0
	for k := 0; k < 10000; k++ {
		c.Tick(Measurement{Theta: dynamo.WrapPi(omega * float64(k) * ts), OmegaElec: 0})
	}
	assert.InDelta(t, omega, c.Omega, 0.5)
	assert.True(t, c.Finite())
}

func TestSweepStepsFrequencyAndStops(t *testing.T) {
	s := Sweep{SpeedAmplitudeRPM: 100, CurrentAmplitude: 2, StepHz: 1, CeilingHz: 2}
	cmd := Commands{SweepSpeedRPM: 100}

	s.Apply(0, &cmd)
	assert.Equal(t, 0.0, s.Hz)
	assert.Equal(t, 0.0, cmd.SpeedRPM)

	s.Apply(0.25, &cmd)
	assert.Equal(t, 1.0, s.Hz)
	assert.InDelta(t, 100.0, cmd.SpeedRPM, 1e-9)
	assert.InDelta(t, 2.0, cmd.IQ, 1e-9)

	s.Apply(1.125, &cmd)
	assert.Equal(t, 2.0, s.Hz)
	assert.InDelta(t, 100*math.Sin(2*math.Pi*2*0.125), cmd.SpeedRPM, 1e-9)
	assert.False(t, s.Done())

	s.Apply(1.6, &cmd)
	assert.True(t, s.Done())
	assert.Equal(t, 0.0, cmd.SpeedRPM)
	assert.Equal(t, 0.0, cmd.IQ)
}

func TestSweepDrivesControllerCommands(t *testing.T) {
	c := newController(t, Params{Machine: pmsmParams(), Excitation: ExcitationSweep, Sweep: DefaultSweep(), SpeedLoop: SpeedOpen})
	assert.Equal(t, 100.0, c.Cmd.SweepSpeedRPM)
	for k := 0; k < 30; k++ {
		c.Tick(Measurement{})
	}
	assert.Equal(t, 1.0, c.SweepState().Hz)
	assert.Greater(t, c.Cmd.SpeedRPM, 0.0)
}

func TestParseModes(t *testing.T) {
	d, err := ParseDAxisPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DAxisZero, d)

	f, err := ParseFluxEstimation("saturation_time")
	require.NoError(t, err)
	assert.Equal(t, FluxSaturationTime, f)

	_, err = ParseFrameSource("encoder")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	tr, err := ParseTransform("power_invariant")
	require.NoError(t, err)
	assert.Equal(t, 1.0, tr.TorqueGain())
	assert.Equal(t, 1.5, AmplitudeInvariant.TorqueGain())
}
