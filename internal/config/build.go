package config

import (
	"fmt"
	"math"

	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/control"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/flux"
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/inverter"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/metrics"
	"github.com/san-kum/acmsim/internal/sim"
	"go.uber.org/zap"
)

// Tuner fills in regulator gains left nil in a Config.
type Tuner interface {
	Tune(c *Config) error
}

// Build turns c into driver parameters. Nil gains are handed to tuner;
// without one they are a configuration error. c itself is not modified.
func (c *Config) Build(tuner Tuner, log *zap.Logger) (sim.Params, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg := c.Clone()
	if tuner != nil {
		if cfg.hasGains() {
			log.Warn("auto-tuning skipped", zap.String("reason", "explicit regulator gains"))
		} else if err := tuner.Tune(cfg); err != nil {
			return sim.Params{}, fmt.Errorf("tune regulators: %w", err)
		}
	}

	s, err := cfg.parse()
	if err != nil {
		return sim.Params{}, err
	}
	if err := cfg.requireGains(); err != nil {
		return sim.Params{}, err
	}

	mp := cfg.machineParams(s.transform)
	period := cfg.Timing.ControlPeriod
	vdc := cfg.Inverter.DCBusVoltage

	cur := cfg.Regulators.Current
	curKi := *cur.SeriesKp * *cur.SeriesKi
	if !cfg.Control.Decoupling && cur.KiFactorWithoutDecoupling > 0 {
		curKi *= cur.KiFactorWithoutDecoupling
		log.Warn("current integral gain scaled without decoupling",
			zap.String("field", "regulators.current.ki_factor_without_decoupling"),
			zap.Float64("factor", cur.KiFactorWithoutDecoupling),
			zap.Float64("ki", curKi))
	}
	vlim := vdc / dynamo.Sqrt3

	spd := cfg.Regulators.Speed
	ilim := spd.OverloadFactor * math.Sqrt2 * mp.RatedCurrent
	speedPeriod := period * float64(cfg.Timing.VelocityLoopRatio)

	regs := foc.Regulators{
		Speed: cfg.pid(spd, *spd.SeriesKp * *spd.SeriesKi, ilim, speedPeriod, s.speedRule),
		ID:    cfg.pid(cur, curKi, vlim, period, s.currentRule),
		IQ:    cfg.pid(cur, curKi, vlim, period, s.currentRule),
	}

	var hook automation.Hook = automation.Builtin()
	if cfg.Control.Commands == "schedule" {
		hook = cfg.Schedule
	}

	var load machine.LoadModel = machine.ConstantLoad{}
	if cfg.Load.Model == "vehicle" {
		load = cfg.Load.Vehicle
	}

	sweep := foc.Sweep{
		SpeedAmplitudeRPM: cfg.Sweep.SpeedAmplitudeRPM,
		CurrentAmplitude:  cfg.Sweep.CurrentAmplitude,
		StepHz:            cfg.Sweep.StepHz,
		CeilingHz:         cfg.Sweep.CeilingHz,
	}

	p := sim.Params{
		Machine: mp,
		Load:    load,
		Controller: foc.Params{
			Machine:        mp,
			Period:         period,
			VelocityRatio:  cfg.Timing.VelocityLoopRatio,
			SpeedLoop:      s.speedLoop,
			DAxis:          s.dAxis,
			FrameSource:    s.frameSource,
			SpeedSource:    s.speedSource,
			FluxEstimation: s.fluxEstimation,
			Excitation:     s.excitation,
			Decoupling:     cfg.Control.Decoupling,
			CommandedFlux:  cfg.Control.CommandedFlux,
			FieldWeakening: foc.FieldWeakening(cfg.FieldWeakening),
			Sweep:          sweep,
			Flux:           cfg.fluxParams(),
			Observer:       cfg.observerParams(),
		},
		Regulators: regs,
		Inverter:   s.inverter,
		SVM:        inverter.SVM{MinDuty: cfg.Inverter.MinDuty, MaxDuty: cfg.Inverter.MaxDuty},
		Vdc:        vdc,
		DeadTime:   cfg.Inverter.DeadTime,
		Latch:      s.latch,
		FineSteps:  cfg.Timing.FineStepsPerControl,
		Duration:   cfg.Timing.Duration,
		Hook:       hook,
		Channels:   s.channels,
		Decimation: cfg.Trace.Decimation,
		Metrics:    metrics.Standard(math.Sqrt2 * mp.RatedCurrent * spd.OverloadFactor),
	}
	return p, nil
}

func (c *Config) pid(r RegulatorConfig, ki, limit, period float64, rule control.Integration) *control.PID {
	pid := control.NewPID(*r.SeriesKp, ki, r.Kd, r.Tau, limit, limit, period)
	pid.Rule = rule
	return pid
}

func (c *Config) hasGains() bool {
	for _, r := range []RegulatorConfig{c.Regulators.Current, c.Regulators.Speed} {
		if r.SeriesKp == nil || r.SeriesKi == nil {
			return false
		}
	}
	return true
}

func (c *Config) requireGains() error {
	for _, r := range []struct {
		field string
		cfg   RegulatorConfig
	}{
		{"regulators.current", c.Regulators.Current},
		{"regulators.speed", c.Regulators.Speed},
	} {
		if r.cfg.SeriesKp == nil || r.cfg.SeriesKi == nil {
			return dynamo.NewConfigurationError(r.field, "series_kp and series_ki are required without a tuner")
		}
	}
	return nil
}

func (c *Config) machineParams(tr foc.Transform) machine.Params {
	m := c.Machine
	return machine.Params{
		PolePairs:       m.PolePairs,
		RatedCurrent:    m.RatedCurrent,
		Resistance:      m.Resistance,
		Ld:              m.Ld,
		Lq:              m.Lq,
		KE:              m.KE,
		RotorResistance: m.RotorResistance,
		Inertia:         m.Inertia,
		TorqueGain:      tr.TorqueGain(),
	}
}

func (c *Config) fluxParams() flux.Params {
	return flux.Params{
		Resistance:      c.Machine.Resistance,
		Gain:            c.Flux.Gain,
		RealtimeGain:    c.Flux.RealtimeGain,
		AdaptiveMargin:  c.Flux.AdaptiveMargin,
		ResistanceScale: c.Flux.ResistanceScale,
	}
}
