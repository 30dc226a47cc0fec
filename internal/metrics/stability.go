package metrics

import (
	"math"

	"github.com/san-kum/acmsim/internal/trace"
)

// Stability is the fraction of samples whose channel magnitude stays within
// the threshold.
type Stability struct {
	name       string
	channel    trace.Channel
	threshold  float64
	violations int
	samples    int
}

func NewStability(ch trace.Channel, threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		channel:   ch,
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(p *trace.Probe, t float64) {
	s.samples++
	if math.Abs(s.channel.Value(p)) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
