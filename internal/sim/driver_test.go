package sim_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/foc"
	"github.com/san-kum/acmsim/internal/machine"
	"github.com/san-kum/acmsim/internal/sim"
	"github.com/san-kum/acmsim/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// presetParams builds driver parameters from a preset after applying edit.
func presetParams(t testing.TB, name string, edit func(*config.Config)) sim.Params {
	t.Helper()
	cfg := config.GetPreset(name)
	require.NotNil(t, cfg, "preset %s", name)
	if edit != nil {
		edit(cfg)
	}
	p, err := cfg.Build(nil, zap.NewNop())
	require.NoError(t, err)
	return p
}

// ideal runs the controller every 10 plant steps with the voltage applied directly.
func ideal(cfg *config.Config) {
	cfg.Inverter.Model = "ideal"
	cfg.Timing.FineStepsPerControl = 10
}

// snapshot copies a buffer into plain slices for comparison.
type snapshot struct {
	Time []float64
	Rows [][]float64
}

func snap(b *trace.Buffer) snapshot {
	s := snapshot{Time: append([]float64(nil), b.Time...)}
	for i := 0; i < b.Len(); i++ {
		s.Rows = append(s.Rows, append([]float64(nil), b.Row(i)...))
	}
	return s
}

func run(t *testing.T, p sim.Params) *sim.Result {
	t.Helper()
	d, err := sim.New(p, zap.NewNop())
	require.NoError(t, err)
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestIdenticalConfigsGiveIdenticalTraces(t *testing.T) {
	edit := func(cfg *config.Config) { cfg.Timing.Duration = 0.005 }

	a := run(t, presetParams(t, "pmsm_default", edit))
	b := run(t, presetParams(t, "pmsm_default", edit))

	require.Greater(t, a.Trace.Len(), 0)
	if diff := cmp.Diff(snap(a.Trace), snap(b.Trace)); diff != "" {
		t.Errorf("traces differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestSwitchingGateOutputs(t *testing.T) {
	p := presetParams(t, "pmsm_default", func(cfg *config.Config) {
		cfg.Timing.Duration = 0.003
		cfg.Trace.Channels = []string{
			"gate.terminal_a", "gate.terminal_b", "gate.terminal_c",
			"gate.duty_a", "gate.duty_b", "gate.duty_c", "gate.counter",
		}
	})
	res := run(t, p)
	require.Equal(t, int(math.Round(p.Duration/p.FineStep())), res.Trace.Len())

	half := float64(p.FineSteps / 2)
	for i := 0; i < res.Trace.Len(); i++ {
		row := res.Trace.Row(i)
		for k := 0; k < 3; k++ {
			if v := row[k]; v != 0 && v != p.Vdc {
				t.Fatalf("row %d: terminal %d at %g V", i, k, v)
			}
			if d := row[3+k]; d < p.SVM.MinDuty || d > p.SVM.MaxDuty {
				t.Fatalf("row %d: duty %d is %g", i, k, d)
			}
		}
		if c := row[6]; c < 0 || c > half {
			t.Fatalf("row %d: carrier at %g", i, c)
		}
	}
}

func TestFirstFineStepTicksController(t *testing.T) {
	var calls []float64
	p := presetParams(t, "pmsm_default", ideal)
	p.Hook = automation.HookFunc(func(t float64, cmd *foc.Commands) {
		calls = append(calls, t)
	})
	d, err := sim.New(p, nil)
	require.NoError(t, err)

	_, err = d.Advance(context.Background(), 25*p.FineStep())
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, 0.0, calls[0])
	assert.InDelta(t, p.Controller.Period, calls[1], 1e-15)
	assert.InDelta(t, 2*p.Controller.Period, calls[2], 1e-15)
}

func TestDivergenceCarriesStep(t *testing.T) {
	p := presetParams(t, "pmsm_default", ideal)
	ticks := 0
	p.Hook = automation.HookFunc(func(_ float64, cmd *foc.Commands) {
		cmd.SpeedRPM = 100
		if ticks == 5 {
			cmd.SpeedRPM = math.NaN()
		}
		ticks++
	})
	core, logs := observer.New(zap.ErrorLevel)
	d, err := sim.New(p, zap.New(core))
	require.NoError(t, err)

	buf, err := d.Advance(context.Background(), 0.01)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamo.ErrNumericDivergence))

	var de *dynamo.DivergenceError
	require.True(t, errors.As(err, &de))
	// the sixth tick runs the speed loop on the bad set-point
	assert.Equal(t, 5*p.FineSteps, de.Step)
	assert.Equal(t, "controller", de.Component)
	assert.Equal(t, de.Step+1, buf.Len())
	assert.Equal(t, 1, logs.FilterMessage("numeric divergence").Len())
}

func TestPlantDivergence(t *testing.T) {
	p := presetParams(t, "pmsm_default", ideal)
	p.Hook = automation.HookFunc(func(_ float64, cmd *foc.Commands) {
		cmd.LoadTorque = math.Inf(1)
	})
	d, err := sim.New(p, nil)
	require.NoError(t, err)

	_, err = d.Advance(context.Background(), 0.001)
	var de *dynamo.DivergenceError
	require.True(t, errors.As(err, &de), "%v", err)
	assert.Equal(t, "plant", de.Component)
	// the load is first read on the step after the first tick
	assert.Equal(t, 1, de.Step)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := sim.New(presetParams(t, "pmsm_default", ideal), nil)
	require.NoError(t, err)
	buf, err := d.Advance(ctx, 0.01)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, buf.Len())

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	p := presetParams(t, "pmsm_default", ideal)
	ticks := 0
	p.Hook = automation.HookFunc(func(float64, *foc.Commands) {
		ticks++
		if ticks == 3 {
			cancel()
		}
	})
	d, err = sim.New(p, nil)
	require.NoError(t, err)

	buf, err = d.Advance(ctx, 0.01)
	assert.True(t, errors.Is(err, context.Canceled))
	// the step that cancelled still completes
	assert.Equal(t, 2*p.FineSteps+1, d.Steps())
	assert.Equal(t, d.Steps(), buf.Len())
}

func TestAdvanceContinuesClock(t *testing.T) {
	edit := func(cfg *config.Config) {
		ideal(cfg)
		cfg.Timing.Duration = 0.002
	}

	d, err := sim.New(presetParams(t, "pmsm_default", edit), nil)
	require.NoError(t, err)
	_, err = d.Advance(context.Background(), 0.001)
	require.NoError(t, err)
	buf, err := d.Advance(context.Background(), 0.001)
	require.NoError(t, err)

	assert.Equal(t, 200, d.Steps())
	assert.InDelta(t, 0.002, d.Time(), 1e-12)
	for i := 1; i < buf.Len(); i++ {
		require.Greater(t, buf.Time[i], buf.Time[i-1])
	}

	whole := run(t, presetParams(t, "pmsm_default", edit))
	if diff := cmp.Diff(snap(whole.Trace), snap(buf)); diff != "" {
		t.Errorf("sliced run differs (-whole +sliced):\n%s", diff)
	}
}

func TestDecimation(t *testing.T) {
	res := run(t, presetParams(t, "pmsm_default", func(cfg *config.Config) {
		ideal(cfg)
		cfg.Timing.Duration = 0.001
		cfg.Trace.Decimation = 10
		cfg.Trace.Channels = []string{"plant.speed_rpm"}
	}))
	assert.Equal(t, 10, res.Trace.Len())
	assert.Equal(t, 1, res.Trace.Width())
	assert.InDelta(t, 1e-4, res.Trace.Time[1], 1e-15)
}

func TestMetricsInConfiguredOrder(t *testing.T) {
	res := run(t, presetParams(t, "pmsm_default", func(cfg *config.Config) {
		ideal(cfg)
		cfg.Timing.Duration = 0.01
	}))

	names := make([]string, len(res.Metrics))
	for i, m := range res.Metrics {
		names[i] = m.Name
		assert.False(t, math.IsNaN(m.Value), m.Name)
	}
	assert.Equal(t, []string{"speed_tracking_rms", "iq_tracking_rms", "control_effort", "peak_plant_iq", "stability"}, names)
}

func TestNewRejectsBadParams(t *testing.T) {
	p := presetParams(t, "induction", ideal)
	p.Machine.RotorResistance = -2.5
	_, err := sim.New(p, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	p = presetParams(t, "pmsm_default", nil)
	p.FineSteps = 10
	_, err = sim.New(p, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	p = presetParams(t, "pmsm_default", nil)
	p.Channels = []trace.Channel{trace.NumChannels}
	_, err = sim.New(p, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestVehicleLoadInertia(t *testing.T) {
	p := presetParams(t, "pmsm_default", func(cfg *config.Config) {
		ideal(cfg)
		cfg.Load.Model = "vehicle"
	})
	d, err := sim.New(p, nil)
	require.NoError(t, err)
	assert.Equal(t, machine.DefaultVehicleLoad().Inertia(), d.Plant().Inertia)
	assert.Equal(t, p.Machine.Inertia, d.Controller().Machine.Inertia)
}
