package inverter

import (
	"fmt"
	"math"

	"github.com/san-kum/acmsim/internal/dynamo"
)

// DefaultDeadTime is the blanking interval inserted on every switching edge [s].
const DefaultDeadTime = 1e-6

// MinSwitchingResolution is the smallest carrier resolution the switching
// model accepts.
const MinSwitchingResolution = 20

// LatchMode selects when the shadow compare registers become active.
type LatchMode string

const (
	LatchValley     LatchMode = "valley"
	LatchValleyPeak LatchMode = "valley_peak"
)

func ParseLatchMode(s string) (LatchMode, error) {
	switch LatchMode(s) {
	case "", LatchValley:
		return LatchValley, nil
	case LatchValleyPeak:
		return LatchValleyPeak, nil
	}
	return "", dynamo.NewConfigurationError("inverter.latch", "unknown latch mode %q", s)
}

// Gate emulates a symmetric up/down PWM carrier with three compare units,
// complementary outputs and dead-time insertion.
type Gate struct {
	// Resolution is the number of carrier counts per control period.
	Resolution int
	DeadCount  int
	Vdc        float64
	Latching   LatchMode

	Counter      int
	CountingDown bool

	shadow      [3]int
	Compare     [3]int
	deadCounter [3]int
	valleyEvent bool

	// S holds the upper switches 0..2 and the lower switches 3..5.
	S [6]bool

	Terminal [3]float64
	LineAC   float64
	LineBC   float64
	UAlpha   float64
	UBeta    float64
}

// countEpsilon absorbs division rounding so that whole counts truncate to
// themselves.
const countEpsilon = 1e-9

// DeadCountFor converts a dead time into whole carrier counts, truncating
// any fraction of a count.
func DeadCountFor(deadTime, fineStep float64) int {
	if fineStep <= 0 {
		return 0
	}
	return int(math.Floor(deadTime/fineStep + countEpsilon))
}

func NewGate(resolution, deadCount int, vdc float64, latching LatchMode) (*Gate, error) {
	if resolution < MinSwitchingResolution {
		return nil, dynamo.NewConfigurationError("timing.fine_steps_per_control",
			"switching inverter needs at least %d fine steps per control period, got %d", MinSwitchingResolution, resolution)
	}
	if deadCount < 0 || deadCount >= resolution/2 {
		return nil, dynamo.NewConfigurationError("inverter.dead_time",
			"dead time of %d counts does not fit a half carrier of %d", deadCount, resolution/2)
	}
	if latching == "" {
		latching = LatchValley
	}
	g := &Gate{
		Resolution: resolution,
		DeadCount:  deadCount,
		Vdc:        vdc,
		Latching:   latching,
	}
	half := resolution / 2
	for i := range g.shadow {
		g.shadow[i] = half / 2
		g.Compare[i] = half / 2
	}
	return g, nil
}

// Latch loads new duties into the shadow registers and raises the valley
// event for the next tick.
func (g *Gate) Latch(duties [3]float64) {
	half := float64(g.Resolution) * 0.5
	for i, d := range duties {
		g.shadow[i] = int((1 - d) * half)
	}
	g.valleyEvent = true
}

// Tick advances the carrier by one count and returns the stationary-frame
// voltage seen by the machine. Phase currents decide the terminal
// potential while both switches of a leg are off.
func (g *Gate) Tick(ia, ib, ic float64) (ualpha, ubeta float64) {
	half := g.Resolution / 2

	if g.valleyEvent {
		g.valleyEvent = false
		g.CountingDown = false
		g.Counter = 0
		g.Compare = g.shadow
		g.deadCounter = [3]int{}
	}
	if g.Counter == half {
		g.CountingDown = true
		if g.Latching == LatchValleyPeak {
			g.Compare = g.shadow
		}
		g.deadCounter = [3]int{}
	} else if g.Counter == 0 && g.CountingDown {
		g.CountingDown = false
		g.deadCounter = [3]int{}
	}

	if g.CountingDown {
		g.Counter--
	} else {
		g.Counter++
	}

	for k := 0; k < 3; k++ {
		on := g.Counter >= g.Compare[k]
		g.S[k] = on
		g.S[k+3] = !on

		if !g.CountingDown && on {
			g.deadCounter[k]++
			if g.deadCounter[k] <= g.DeadCount {
				g.S[k] = false
			}
		} else if g.CountingDown && !on {
			g.deadCounter[k]++
			if g.deadCounter[k] <= g.DeadCount {
				g.S[k+3] = false
			}
		}
	}

	currents := [3]float64{ia, ib, ic}
	for k := 0; k < 3; k++ {
		switch {
		case g.S[k]:
			g.Terminal[k] = g.Vdc
		case g.S[k+3]:
			g.Terminal[k] = 0
		case currents[k] < 0:
			g.Terminal[k] = g.Vdc
		default:
			g.Terminal[k] = 0
		}
	}

	g.LineAC = g.Terminal[0] - g.Terminal[2]
	g.LineBC = g.Terminal[1] - g.Terminal[2]
	g.UAlpha, g.UBeta = dynamo.ClarkeLineToLine(g.LineAC, g.LineBC)
	return g.UAlpha, g.UBeta
}

func (g *Gate) String() string {
	return fmt.Sprintf("carrier %d/%d down=%t cmp=%v", g.Counter, g.Resolution/2, g.CountingDown, g.Compare)
}
