package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/inverter"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/metrics"
	"github.com/san-kum/acmsim/internal/trace"
	"go.uber.org/zap"
)

// Driver runs the plant at the fine step and the controller, modulator and
// gate latch once every FineSteps plant steps.
type Driver struct {
	p   Params
	log *zap.Logger

	plant *machine.Machine
	ctrl  *foc.Controller
	svm   inverter.SVM
	gate  *inverter.Gate
	load  machine.LoadModel
	hook  automation.Hook

	metrics []metrics.Metric
	buf     *trace.Buffer
	probe   trace.Probe

	dt   float64
	t    float64
	step int
	// jj counts fine steps since the last controller tick
	jj  int
	uab [2]float64
}

func New(p Params, log *zap.Logger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Inverter == "" {
		p.Inverter = Switching
	}
	if p.Decimation == 0 {
		p.Decimation = 1
	}
	if p.Load == nil {
		p.Load = machine.ConstantLoad{}
	}
	if p.Hook == nil {
		p.Hook = automation.Nop
	}
	if p.SVM == (inverter.SVM{}) {
		p.SVM = inverter.NewSVM()
	}
	if err := p.SVM.Validate(); err != nil {
		return nil, err
	}
	if p.Channels == nil {
		p.Channels = trace.All()
	}

	mp := p.Machine
	if v, ok := p.Load.(interface{ Inertia() float64 }); ok {
		mp.Inertia = v.Inertia()
	}
	plant, err := machine.New(mp)
	if err != nil {
		return nil, fmt.Errorf("plant: %w", err)
	}
	ctrl, err := foc.New(p.Controller, p.Regulators, log)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	d := &Driver{
		p:       p,
		log:     log,
		plant:   plant,
		ctrl:    ctrl,
		svm:     p.SVM,
		load:    p.Load,
		hook:    p.Hook,
		metrics: p.Metrics,
		dt:      p.FineStep(),
		jj:      p.FineSteps,
	}

	if p.Inverter == Switching {
		dead := inverter.DeadCountFor(p.DeadTime, d.dt)
		d.gate, err = inverter.NewGate(p.FineSteps, dead, p.Vdc, p.Latch)
		if err != nil {
			return nil, err
		}
	}

	capacity := 0
	if p.Duration > 0 {
		capacity = int(p.Duration/d.dt)/p.Decimation + 1
	}
	d.buf = trace.NewBuffer(p.Channels, capacity)
	d.probe = trace.Probe{Plant: plant, Ctrl: ctrl, Gate: d.gate}

	for _, m := range d.metrics {
		m.Reset()
	}
	return d, nil
}

// Advance simulates the next duration seconds and returns the buffer
// recorded since the driver was created. Cancellation is observed between
// fine steps and returns what was recorded so far with ctx.Err().
func (d *Driver) Advance(ctx context.Context, duration float64) (*trace.Buffer, error) {
	if duration < 0 || math.IsNaN(duration) {
		return d.buf, dynamo.NewConfigurationError("timing.duration", "must be non-negative, got %g", duration)
	}
	steps := int(math.Round(duration / d.dt))
	d.log.Info("advancing",
		zap.Float64("from", d.t),
		zap.Float64("duration", duration),
		zap.Int("steps", steps),
		zap.String("inverter", string(d.p.Inverter)))

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			d.log.Info("cancelled", zap.Float64("t", d.t), zap.Int("step", d.step))
			return d.buf, ctx.Err()
		default:
		}

		if err := d.fineStep(); err != nil {
			d.log.Error("numeric divergence", zap.Error(err))
			return d.buf, err
		}
	}

	d.log.Info("slice done",
		zap.Float64("t", d.t),
		zap.Int("recorded", d.buf.Len()),
		zap.Float64("speed_rpm", d.plant.SpeedRPM()))
	return d.buf, nil
}

func (d *Driver) fineStep() error {
	t := d.t
	cmd := &d.ctrl.Cmd

	tl := d.load.Torque(cmd.LoadTorque, d.plant.OmegaMech())
	d.plant.Step(d.uab[0], d.uab[1], tl, d.dt)

	d.jj++
	if d.jj >= d.p.FineSteps {
		d.jj = 0
		d.hook.Apply(t, cmd)
		d.ctrl.Tick(foc.Measurement{
			IAlpha:    d.plant.IAlpha,
			IBeta:     d.plant.IBeta,
			Theta:     d.plant.ThetaD,
			OmegaElec: d.plant.OmegaElec,
		})
		if d.gate != nil {
			d.probe.Duties = d.svm.Generate(d.ctrl.CmdUAB[0], d.ctrl.CmdUAB[1], d.p.Vdc, 0)
			d.gate.Latch(d.probe.Duties.D)
		}
	}

	if d.gate != nil {
		d.uab[0], d.uab[1] = d.gate.Tick(d.plant.Ia, d.plant.Ib, d.plant.Ic)
	} else {
		d.uab = d.ctrl.CmdUAB
	}

	if d.step%d.p.Decimation == 0 {
		d.buf.Record(t, &d.probe)
		for _, m := range d.metrics {
			m.Observe(&d.probe, t)
		}
	}

	d.step++
	d.t = float64(d.step) * d.dt

	if err := d.check(t); err != nil {
		return err
	}
	return nil
}

func (d *Driver) check(t float64) error {
	var component string
	var state dynamo.State
	switch {
	case !d.plant.State().IsValid():
		component, state = "plant", d.plant.State()
	case d.ctrl.Estimator != nil && !d.ctrl.Estimator.Finite():
		component, state = "flux estimator", d.ctrl.Estimator.State()
	case d.ctrl.SpeedObserver != nil && !d.ctrl.SpeedObserver.Finite():
		component, state = "speed observer", d.ctrl.SpeedObserver.State()
	case !d.ctrl.Finite():
		component, state = "controller", dynamo.State{d.ctrl.CmdUDQ[0], d.ctrl.CmdUDQ[1], d.ctrl.Omega, d.ctrl.KA}
	case !dynamo.Finite(d.uab[0], d.uab[1]):
		component, state = "inverter", dynamo.State{d.uab[0], d.uab[1]}
	default:
		return nil
	}
	return &dynamo.DivergenceError{
		Step:      d.step - 1,
		Time:      t,
		Component: component,
		State:     state.Clone(),
	}
}

// Run advances by the configured duration and collects the metrics.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	buf, err := d.Advance(ctx, d.p.Duration)
	return &Result{
		Trace:   buf,
		Metrics: d.MetricValues(),
		Steps:   d.step,
		Time:    d.t,
	}, err
}

// MetricValues reports the metrics in the order they were configured.
func (d *Driver) MetricValues() []MetricValue {
	out := make([]MetricValue, len(d.metrics))
	for i, m := range d.metrics {
		out[i] = MetricValue{Name: m.Name(), Value: m.Value()}
	}
	return out
}

func (d *Driver) Time() float64               { return d.t }
func (d *Driver) Steps() int                  { return d.step }
func (d *Driver) Trace() *trace.Buffer        { return d.buf }
func (d *Driver) Plant() *machine.Machine     { return d.plant }
func (d *Driver) Controller() *foc.Controller { return d.ctrl }
func (d *Driver) Gate() *inverter.Gate        { return d.gate }
func (d *Driver) Params() Params              { return d.p }
