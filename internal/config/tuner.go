package config

import (
	"math"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
)

const (
	DefaultCurrentBandwidthHz = 500.0
	DefaultDampingFactor      = 10.0
)

// BandwidthTuner places the current loop zero on the stator pole and the
// speed loop symmetrically around a crossover Delta times below the
// current bandwidth. Only nil gains are written.
type BandwidthTuner struct {
	CurrentBandwidthHz float64
	Delta              float64
}

func NewBandwidthTuner() BandwidthTuner {
	return BandwidthTuner{CurrentBandwidthHz: DefaultCurrentBandwidthHz, Delta: DefaultDampingFactor}
}

func (b BandwidthTuner) Tune(c *Config) error {
	m := c.Machine
	switch {
	case b.CurrentBandwidthHz <= 0:
		return dynamo.NewConfigurationError("tuner.current_bandwidth", "must be positive, got %g", b.CurrentBandwidthHz)
	case b.Delta <= 1:
		return dynamo.NewConfigurationError("tuner.delta", "must be greater than 1, got %g", b.Delta)
	case m.Lq <= 0 || m.Inertia <= 0 || m.PolePairs <= 0:
		return dynamo.NewConfigurationError("machine", "tuning needs positive lq, inertia and pole pairs")
	}

	wc := dynamo.TwoPi * b.CurrentBandwidthHz
	cur := &c.Regulators.Current
	if cur.SeriesKp == nil {
		cur.SeriesKp = Gain(m.Lq * wc)
	}
	if cur.SeriesKi == nil {
		cur.SeriesKi = Gain((m.Resistance + m.RotorResistance) / m.Lq)
	}

	psi := c.Control.CommandedFlux
	if psi == 0 {
		psi = m.KE
		if m.RotorResistance > 0 {
			psi = foc.DefaultInductionFlux
		}
	}
	if psi <= 0 {
		return dynamo.NewConfigurationError("machine.ke", "speed loop tuning needs a positive flux")
	}
	tr, err := foc.ParseTransform(c.Control.Transform)
	if err != nil {
		return err
	}
	// electrical acceleration per ampere of q-axis current
	plant := tr.TorqueGain() * m.PolePairs * m.PolePairs * psi / m.Inertia
	ws := wc / b.Delta

	spd := &c.Regulators.Speed
	if spd.SeriesKp == nil {
		spd.SeriesKp = Gain(ws / plant)
	}
	if spd.SeriesKi == nil {
		spd.SeriesKi = Gain(ws / b.Delta)
	}
	if math.IsNaN(*spd.SeriesKp) || math.IsInf(*spd.SeriesKp, 0) {
		return dynamo.NewConfigurationError("regulators.speed.series_kp", "tuning produced %g", *spd.SeriesKp)
	}
	return nil
}
