package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/acmsim/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

type oscillator struct{}

func (s *oscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *oscillator) StateDim() int   { return 2 }
func (s *oscillator) ControlDim() int { return 0 }

// stageRecorder records the time argument of every derivative evaluation.
type stageRecorder struct {
	times []float64
}

func (s *stageRecorder) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	s.times = append(s.times, t)
	return dynamo.State{0}
}

func (s *stageRecorder) StateDim() int   { return 1 }
func (s *stageRecorder) ControlDim() int { return 0 }

func integrate(dt float64, steps int) dynamo.State {
	integ := NewRK4()
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < steps; i++ {
		x = integ.Step(&oscillator{}, x, nil, float64(i)*dt, dt)
	}
	return x
}

func TestRK4Accuracy(t *testing.T) {
	dt := 0.01
	steps := 100
	x := integrate(dt, steps)

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], expectedV)
	}
}

func TestRK4FourthOrderConvergence(t *testing.T) {
	exact := []float64{math.Cos(2), -math.Sin(2)}

	coarse := integrate(0.1, 20)
	fine := integrate(0.05, 40)

	errCoarse := floats.Distance(coarse, exact, 2)
	errFine := floats.Distance(fine, exact, 2)
	ratio := errCoarse / errFine

	if ratio < 14 || ratio > 18 {
		t.Errorf("expected error ratio near 16 when halving dt, got %.2f", ratio)
	}
}

func TestRK4StageTimes(t *testing.T) {
	rec := &stageRecorder{}
	NewRK4().Step(rec, dynamo.State{0}, nil, 1.0, 0.2)

	want := []float64{1.0, 1.1, 1.1, 1.2}
	if !floats.EqualApprox(rec.times, want, 1e-12) {
		t.Errorf("stage times = %v, want %v", rec.times, want)
	}
}

func TestRK4StepIntoAliases(t *testing.T) {
	integ := NewRK4()
	x := dynamo.State{1.0, 0.0}
	expected := integ.Step(&oscillator{}, x, nil, 0, 0.01)

	integ.StepInto(x, &oscillator{}, x, nil, 0, 0.01)
	if !floats.EqualApprox(x, expected, 0) {
		t.Errorf("in-place step = %v, want %v", x, expected)
	}
}
