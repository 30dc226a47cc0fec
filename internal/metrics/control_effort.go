package metrics

import (
	"math"
	"strings"

	"github.com/san-kum/acmsim/internal/trace"
)

// ControlEffort is the mean of the summed absolute values of the observed
// command channels.
type ControlEffort struct {
	name     string
	channels []trace.Channel
	sum      float64
	samples  int
}

func NewControlEffort(channels ...trace.Channel) *ControlEffort {
	return &ControlEffort{
		name:     "control_effort",
		channels: channels,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(p *trace.Probe, t float64) {
	for _, ch := range c.channels {
		c.sum += math.Abs(ch.Value(p))
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Peak is the largest absolute value seen on a channel.
type Peak struct {
	name    string
	channel trace.Channel
	peak    float64
}

func NewPeak(ch trace.Channel) *Peak {
	return &Peak{name: "peak_" + strings.ReplaceAll(ch.Name(), ".", "_"), channel: ch}
}

func (p *Peak) Name() string { return p.name }

func (p *Peak) Observe(probe *trace.Probe, t float64) {
	p.peak = math.Max(p.peak, math.Abs(p.channel.Value(probe)))
}

func (p *Peak) Value() float64 { return p.peak }

func (p *Peak) Reset() { p.peak = 0 }
