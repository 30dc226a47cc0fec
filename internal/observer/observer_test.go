package observer

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	polePairs = 4.0
	inertia   = 0.0006168
	period    = 1e-4
)

func newObserver(t *testing.T, order Order) *Observer {
	t.Helper()
	o, err := New(Params{Order: order, PolePairs: polePairs, Inertia: inertia, Period: period})
	require.NoError(t, err)
	return o
}

// run feeds the angle of a rotor with initial speed w0 and constant
// acceleration alpha, and returns the true speed at the end.
func run(o *Observer, w0, alpha, duration float64) (omega float64) {
	steps := int(math.Round(duration / period))
	for k := 0; k < steps; k++ {
		tk := float64(k) * period
		o.Update(dynamo.WrapPi(w0*tk+0.5*alpha*tk*tk), 0)
	}
	tEnd := float64(steps) * period
	o.Error = dynamo.AngleDiff(dynamo.WrapPi(w0*tEnd+0.5*alpha*tEnd*tEnd), o.Theta())
	return w0 + alpha*tEnd
}

func TestPlaceGains(t *testing.T) {
	k := inertia / polePairs
	assert.Equal(t, []float64{200, 1e4}, PlaceGains(Order2, 100, polePairs, inertia))
	assert.InDeltaSlice(t, []float64{300, 3e4, 1e6 * k}, PlaceGains(Order3, 100, polePairs, inertia), 1e-9)
	assert.InDeltaSlice(t, []float64{400, 6e4, 4e6 * k, 1e8 * k}, PlaceGains(Order4, 100, polePairs, inertia), 1e-9)
}

func TestExplicitGainsOverridePlacement(t *testing.T) {
	o, err := New(Params{Order: Order3, Gains: []float64{1, 2, 3}, PolePairs: polePairs, Inertia: inertia, Period: period})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, o.Coefficients())

	_, err = New(Params{Order: Order3, Gains: []float64{1, 2}, PolePairs: polePairs, Inertia: inertia, Period: period})
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	_, err = New(Params{Order: 5, PolePairs: polePairs, Inertia: inertia, Period: period})
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestConvergesAtConstantSpeed(t *testing.T) {
	const speed = 300.0
	for _, order := range []Order{Order2, Order3, Order4} {
		t.Run(fmt.Sprintf("order %d", order), func(t *testing.T) {
			o := newObserver(t, order)
			run(o, speed, 0, 1)

			// the measurement is held over the period, so the estimate lags by half a sample
			assert.InDelta(t, speed, o.Omega(), 0.05)
			assert.InDelta(t, speed*period/2, o.Error, 2e-3)
			assert.LessOrEqual(t, math.Abs(o.Theta()), math.Pi)
			assert.True(t, o.Finite())
		})
	}
}

func TestDisturbanceEstimate(t *testing.T) {
	const load = 0.01
	alpha := -load * polePairs / inertia

	second := newObserver(t, Order2)
	run(second, 300, alpha, 2)

	for _, order := range []Order{Order3, Order4} {
		o := newObserver(t, order)
		omega := run(o, 300, alpha, 2)

		assert.InDelta(t, -load, o.Disturbance(), 1e-3)
		assert.InDelta(t, omega, o.Omega(), 0.05)
		assert.Less(t, math.Abs(o.Omega()-omega), math.Abs(second.Omega()-omega))
	}
	assert.Zero(t, second.Disturbance())
}

func TestWrappedErrorAcrossBranchCut(t *testing.T) {
	o := newObserver(t, Order2)
	o.x[0] = math.Pi - 0.01
	o.Update(-math.Pi+0.01, 0)
	assert.InDelta(t, 0.02, o.Error, 1e-12)
	assert.Greater(t, o.Omega(), 0.0)
}
