package config

import (
	"math"

	"github.com/san-kum/acmsim/internal/control"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/inverter"
	"github.com/san-kum/acmsim/internal/observer"
	"github.com/san-kum/acmsim/internal/sim"
	"github.com/san-kum/acmsim/internal/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

// settings holds the tagged variants of a Config, parsed once.
type settings struct {
	inverter       sim.InverterModel
	latch          inverter.LatchMode
	speedLoop      foc.SpeedLoop
	dAxis          foc.DAxisPolicy
	frameSource    foc.FrameSource
	speedSource    foc.SpeedSource
	fluxEstimation foc.FluxEstimation
	excitation     foc.Excitation
	transform      foc.Transform
	currentRule    control.Integration
	speedRule      control.Integration
	channels       []trace.Channel
}

// Validate reports every violation in c at once. Missing regulator gains
// are not a violation here; Build decides about those.
func (c *Config) Validate() error {
	_, err := c.parse()
	return err
}

func (c *Config) parse() (settings, error) {
	var (
		s    settings
		errs error
		err  error
	)
	add := func(e error) {
		errs = multierr.Append(errs, e)
	}

	s.inverter, err = sim.ParseInverterModel(c.Inverter.Model)
	add(err)
	s.latch, err = inverter.ParseLatchMode(c.Inverter.Latch)
	add(err)
	s.speedLoop, err = foc.ParseSpeedLoop(c.Control.SpeedLoop)
	add(err)
	s.dAxis, err = foc.ParseDAxisPolicy(c.Control.DAxis)
	add(err)
	s.frameSource, err = foc.ParseFrameSource(c.Control.FrameSource)
	add(err)
	s.speedSource, err = foc.ParseSpeedSource(c.Control.SpeedSource)
	add(err)
	s.fluxEstimation, err = foc.ParseFluxEstimation(c.Control.FluxEstimation)
	add(err)
	s.excitation, err = foc.ParseExcitation(c.Control.Excitation)
	add(err)
	s.transform, err = foc.ParseTransform(c.Control.Transform)
	add(err)
	s.currentRule, err = parseIntegration("regulators.current.integration", c.Regulators.Current.Integration)
	add(err)
	s.speedRule, err = parseIntegration("regulators.speed.integration", c.Regulators.Speed.Integration)
	add(err)
	s.channels, err = trace.Resolve(c.Trace.Channels)
	add(err)

	mp := c.machineParams(s.transform)
	add(mp.Validate())
	if mp.RatedCurrent <= 0 {
		add(dynamo.NewConfigurationError("machine.rated_current", "must be positive, got %g", mp.RatedCurrent))
	}

	add(c.checkTiming(s.inverter))
	add(c.checkInverter(s.inverter))
	add(c.Regulators.Current.check("regulators.current"))
	add(c.Regulators.Speed.check("regulators.speed"))
	if c.Regulators.Current.KiFactorWithoutDecoupling < 0 {
		add(dynamo.NewConfigurationError("regulators.current.ki_factor_without_decoupling",
			"must be non-negative, got %g", c.Regulators.Current.KiFactorWithoutDecoupling))
	}
	if c.Regulators.Speed.OverloadFactor <= 0 {
		add(dynamo.NewConfigurationError("regulators.speed.overload_factor",
			"must be positive, got %g", c.Regulators.Speed.OverloadFactor))
	}

	if s.speedSource == foc.SpeedObserver {
		op := c.observerParams()
		op.PolePairs = mp.PolePairs
		op.Inertia = mp.Inertia
		op.Period = c.Timing.ControlPeriod
		add(op.Validate())
	}
	if s.fluxEstimation == foc.FluxSaturationTime {
		fp := c.fluxParams()
		fp.LeakageInductance = mp.Lq
		fp.Period = c.Timing.ControlPeriod
		add(fp.Validate())
	}

	fw := c.FieldWeakening
	if fw.StartRPM < 0 || fw.FullRPM < fw.StartRPM || fw.MaxDemagCurrent < 0 {
		add(dynamo.NewConfigurationError("field_weakening",
			"need 0 <= start_rpm <= full_rpm and max_demag_current >= 0, got [%g, %g] %g",
			fw.StartRPM, fw.FullRPM, fw.MaxDemagCurrent))
	}
	if c.Sweep.StepHz <= 0 || c.Sweep.CeilingHz < 0 {
		add(dynamo.NewConfigurationError("sweep.step_hz",
			"need step_hz > 0 and ceiling_hz >= 0, got %g and %g", c.Sweep.StepHz, c.Sweep.CeilingHz))
	}

	add(c.checkLoad())
	switch c.Control.Commands {
	case "", "builtin":
	case "schedule":
		add(c.Schedule.Validate())
	default:
		add(dynamo.NewConfigurationError("control.commands", "unknown value %q, want builtin or schedule", c.Control.Commands))
	}
	if c.Trace.Decimation < 0 {
		add(dynamo.NewConfigurationError("trace.decimation", "must be non-negative, got %d", c.Trace.Decimation))
	}
	add(c.Logging.check())

	return s, errs
}

func parseIntegration(field, s string) (control.Integration, error) {
	if s == "" {
		return control.Tustin, nil
	}
	rule := control.Integration(s)
	if !rule.Valid() {
		return "", dynamo.NewConfigurationError(field, "unknown value %q, want tustin or euler", s)
	}
	return rule, nil
}

func (c *Config) checkTiming(model sim.InverterModel) error {
	t := c.Timing
	var errs error
	if t.ControlPeriod <= 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("timing.control_period", "must be positive, got %g", t.ControlPeriod))
	}
	if t.FineStepsPerControl < 1 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("timing.fine_steps_per_control", "must be at least 1, got %d", t.FineStepsPerControl))
	} else if model == sim.Switching && t.FineStepsPerControl < inverter.MinSwitchingResolution {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("timing.fine_steps_per_control",
			"switching inverter needs at least %d fine steps per control period, got %d",
			inverter.MinSwitchingResolution, t.FineStepsPerControl))
	}
	if t.VelocityLoopRatio < 1 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("timing.velocity_loop_ratio", "must be at least 1, got %d", t.VelocityLoopRatio))
	}
	if t.Duration < 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("timing.duration", "must be non-negative, got %g", t.Duration))
	}
	return errs
}

func (c *Config) checkInverter(model sim.InverterModel) error {
	inv := c.Inverter
	var errs error
	if inv.DCBusVoltage <= 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("inverter.dc_bus_voltage", "must be positive, got %g", inv.DCBusVoltage))
	}
	if inv.DeadTime < 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError("inverter.dead_time", "must be non-negative, got %g", inv.DeadTime))
	} else if c.Timing.ControlPeriod > 0 && c.Timing.FineStepsPerControl > 0 {
		n := c.Timing.FineStepsPerControl
		dead := inverter.DeadCountFor(inv.DeadTime, c.Timing.ControlPeriod/float64(n))
		if model == sim.Switching && dead >= n/2 {
			errs = multierr.Append(errs, dynamo.NewConfigurationError("inverter.dead_time",
				"dead time of %d counts does not fit a half carrier of %d", dead, n/2))
		}
	}
	svm := inverter.SVM{MinDuty: inv.MinDuty, MaxDuty: inv.MaxDuty}
	return multierr.Append(errs, svm.Validate())
}

func (r RegulatorConfig) check(field string) error {
	var errs error
	for _, g := range []struct {
		name string
		v    *float64
	}{
		{"series_kp", r.SeriesKp},
		{"series_ki", r.SeriesKi},
	} {
		if g.v != nil && (*g.v < 0 || math.IsNaN(*g.v) || math.IsInf(*g.v, 0)) {
			errs = multierr.Append(errs, dynamo.NewConfigurationError(field+"."+g.name, "must be finite and non-negative, got %g", *g.v))
		}
	}
	if r.Kd < 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError(field+".kd", "must be non-negative, got %g", r.Kd))
	}
	if r.Tau < 0 {
		errs = multierr.Append(errs, dynamo.NewConfigurationError(field+".tau", "must be non-negative, got %g", r.Tau))
	}
	return errs
}

func (c *Config) checkLoad() error {
	switch c.Load.Model {
	case "", "constant":
		return nil
	case "vehicle":
		v := c.Load.Vehicle
		if v.Mass <= 0 || v.WheelRadius <= 0 {
			return dynamo.NewConfigurationError("load.vehicle", "mass and wheel_radius must be positive, got %g and %g", v.Mass, v.WheelRadius)
		}
		return nil
	}
	return dynamo.NewConfigurationError("load.model", "unknown value %q, want constant or vehicle", c.Load.Model)
}

func (l LoggingConfig) check() error {
	var errs error
	if l.Level != "" {
		if _, err := zapcore.ParseLevel(l.Level); err != nil {
			errs = multierr.Append(errs, dynamo.NewConfigurationError("logging.level", "%v", err))
		}
	}
	switch l.Format {
	case "", "console", "json":
	default:
		errs = multierr.Append(errs, dynamo.NewConfigurationError("logging.format", "unknown value %q, want console or json", l.Format))
	}
	return errs
}

func (c *Config) observerParams() observer.Params {
	return observer.Params{
		Order:     observer.Order(c.Observer.Order),
		Bandwidth: c.Observer.Bandwidth,
		Gains:     append([]float64(nil), c.Observer.Gains...),
	}
}
