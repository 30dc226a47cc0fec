package sim

import (
	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/inverter"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/metrics"
	"github.com/san-kum/acmsim/internal/trace"
)

// InverterModel selects how the controller's voltage reaches the plant.
type InverterModel string

const (
	// Switching runs SVM and the gate emulator at the fine step.
	Switching InverterModel = "switching"
	// Ideal applies the commanded voltage directly, held between ticks.
	Ideal InverterModel = "ideal"
)

func ParseInverterModel(s string) (InverterModel, error) {
	switch InverterModel(s) {
	case "", Switching:
		return Switching, nil
	case Ideal:
		return Ideal, nil
	}
	return "", dynamo.NewConfigurationError("inverter.model", "unknown model %q, want switching or ideal", s)
}

// Params is everything a Driver needs. Regulators and metrics are stateful
// and must not be shared between drivers.
type Params struct {
	// Machine is the plant. Controller.Machine is the controller's model of it.
	Machine    machine.Params
	Load       machine.LoadModel
	Controller foc.Params
	Regulators foc.Regulators

	Inverter InverterModel
	SVM      inverter.SVM
	Vdc      float64
	DeadTime float64
	Latch    inverter.LatchMode

	// FineSteps is the number of plant steps per control period.
	FineSteps int
	Duration  float64

	Hook       automation.Hook
	Channels   []trace.Channel
	Decimation int
	Metrics    []metrics.Metric
}

// FineStep is the plant integration step.
func (p Params) FineStep() float64 {
	return p.Controller.Period / float64(p.FineSteps)
}

func (p Params) validate() error {
	switch {
	case p.Controller.Period <= 0:
		return dynamo.NewConfigurationError("timing.control_period", "must be positive, got %g", p.Controller.Period)
	case p.FineSteps < 1:
		return dynamo.NewConfigurationError("timing.fine_steps_per_control", "must be at least 1, got %d", p.FineSteps)
	case p.Decimation < 0:
		return dynamo.NewConfigurationError("trace.decimation", "must be non-negative, got %d", p.Decimation)
	case p.Vdc <= 0:
		return dynamo.NewConfigurationError("inverter.dc_bus_voltage", "must be positive, got %g", p.Vdc)
	case p.DeadTime < 0:
		return dynamo.NewConfigurationError("inverter.dead_time", "must be non-negative, got %g", p.DeadTime)
	}
	for _, ch := range p.Channels {
		if !ch.Valid() {
			return dynamo.NewConfigurationError("trace.channels", "unknown channel index %d", int(ch))
		}
	}
	return nil
}

// MetricValue is one metric at the end of a run.
type MetricValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type Result struct {
	Trace   *trace.Buffer
	Metrics []MetricValue
	Steps   int
	Time    float64
}
