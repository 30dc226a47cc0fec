package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPointsEnumerateLastFastest(t *testing.T) {
	g, err := NewGridSearch([]string{"speed.series_kp", "speed.series_ki"}, [][]float64{{1, 2}, {10, 20, 30}}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{
		{1, 10}, {1, 20}, {1, 30},
		{2, 10}, {2, 20}, {2, 30},
	}, g.points())
}

func TestNewGridSearchRejectsUnknownParameter(t *testing.T) {
	_, err := NewGridSearch([]string{"speed.kd"}, [][]float64{{1}}, 0, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	_, err = NewGridSearch([]string{"speed.series_kp"}, nil, 0, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Linspace(0, 1, 3))
	assert.Equal(t, []float64{2}, Linspace(2, 5, 1))
}

func TestSearchPrefersTrackingGains(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := config.GetPreset("pmsm_default")
	base.Inverter.Model = "ideal"
	base.Timing.FineStepsPerControl = 10
	base.Timing.Duration = 0.05
	base.Control.Commands = "schedule"
	speed := 200.0
	base.Schedule = automation.Schedule{{Until: 1e9, SpeedRPM: &speed}}
	base.Trace.Channels = []string{"plant.speed_rpm"}

	// a near-zero proportional gain barely accelerates the rotor
	g, err := NewGridSearch([]string{"speed.series_kp"}, [][]float64{{1e-5, 0.034}}, 2, nil)
	require.NoError(t, err)

	best, points, err := g.Search(context.Background(), base, "speed_tracking_rms")
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.NoError(t, p.Err)
	}
	assert.Equal(t, []float64{0.034}, best.Values)
	assert.Less(t, points[1].Metric, points[0].Metric)
}

func TestSearchUnknownMetric(t *testing.T) {
	base := config.GetPreset("pmsm_default")
	base.Inverter.Model = "ideal"
	base.Timing.FineStepsPerControl = 10
	base.Timing.Duration = 0.001

	g, err := NewGridSearch([]string{"flux.gain"}, [][]float64{{10}}, 0, nil)
	require.NoError(t, err)
	_, points, err := g.Search(context.Background(), base, "overshoot")
	require.Error(t, err)
	assert.True(t, errors.Is(points[0].Err, dynamo.ErrConfiguration))
}
