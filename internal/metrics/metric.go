package metrics

import (
	"math"

	"github.com/san-kum/acmsim/internal/trace"
)

// Metric folds every recorded tick of a run into one number.
type Metric interface {
	Name() string
	Observe(p *trace.Probe, t float64)
	Value() float64
	Reset()
}

// Standard returns the run summary metrics for a drive whose current
// magnitude must stay below imax.
func Standard(imax float64) []Metric {
	return []Metric{
		NewTrackingRMS("speed_tracking_rms", trace.CmdSpeedRPM, trace.PlantSpeedRPM),
		NewTrackingRMS("iq_tracking_rms", trace.CmdIQ, trace.CtrlIQ),
		NewControlEffort(trace.CmdUD, trace.CmdUQ),
		NewPeak(trace.PlantIQ),
		NewStability(trace.PlantIQ, imax),
	}
}

// TrackingRMS is the root mean square of reference minus measurement.
type TrackingRMS struct {
	name    string
	ref     trace.Channel
	meas    trace.Channel
	sumSq   float64
	samples int
}

func NewTrackingRMS(name string, ref, meas trace.Channel) *TrackingRMS {
	return &TrackingRMS{name: name, ref: ref, meas: meas}
}

func (m *TrackingRMS) Name() string { return m.name }

func (m *TrackingRMS) Observe(p *trace.Probe, t float64) {
	e := m.ref.Value(p) - m.meas.Value(p)
	m.sumSq += e * e
	m.samples++
}

func (m *TrackingRMS) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingRMS) Reset() {
	m.sumSq = 0
	m.samples = 0
}
