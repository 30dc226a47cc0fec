package flux

// CrossingState is the debounce stage of a zero-crossing detector.
type CrossingState int

const (
	Idle CrossingState = iota
	Armed
	Confirmed
)

func (s CrossingState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

// crossing detects one direction of zero crossing on one axis. sign is the
// target sign: -1 detects positive-to-negative, +1 negative-to-positive.
// A crossing is only accepted once the following sample agrees with it.
type crossing struct {
	sign  float64
	state CrossingState

	crossTime     float64
	prevCrossTime float64

	// holding is set by a crossing and cleared by the first sample that is
	// not past the target sign; the extremum only moves while it holds
	holding bool

	// extremum seen since confirmation; min for falling, max for rising
	extremum float64
}

func newCrossing(sign float64) crossing {
	return crossing{sign: sign}
}

// step advances the detector by one sample and reports whether the
// half-cycle event fired on this sample. The caller handles the event
// before calling track.
func (c *crossing) step(prev, curr, now float64) (fired bool) {
	past := c.sign*prev > 0 && c.sign*curr > 0

	switch c.state {
	case Armed:
		if past {
			c.state = Confirmed
			fired = true
		} else {
			c.state = Idle
			c.holding = false
		}
	case Confirmed:
		// stays confirmed until the opposite direction resets it
		if !past {
			c.holding = false
		}
	}

	if c.sign*prev < 0 && c.sign*curr > 0 {
		c.holding = true
		c.crossTime = now
		if c.state != Confirmed {
			c.state = Armed
		}
	}
	return fired
}

// track updates the extremum while confirmed, holding and past the target
// sign.
func (c *crossing) track(prev, curr float64) {
	if c.state != Confirmed || !c.holding || !(c.sign*prev > 0 && c.sign*curr > 0) {
		return
	}
	if c.sign*curr > c.sign*c.extremum {
		c.extremum = curr
	}
}

// period returns the time between the last two accepted crossings and
// makes the latest one the new reference.
func (c *crossing) period() float64 {
	dt := c.crossTime - c.prevCrossTime
	c.prevCrossTime = c.crossTime
	return dt
}

func (c *crossing) reset() {
	c.state = Idle
	c.holding = false
}
