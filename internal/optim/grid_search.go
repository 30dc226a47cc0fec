package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/dynamo"
	"github.com/san-kum/acmsim/internal/sim"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Parameters that a grid may vary.
var setters = map[string]func(c *config.Config, v float64){
	"current.series_kp":  func(c *config.Config, v float64) { c.Regulators.Current.SeriesKp = config.Gain(v) },
	"current.series_ki":  func(c *config.Config, v float64) { c.Regulators.Current.SeriesKi = config.Gain(v) },
	"speed.series_kp":    func(c *config.Config, v float64) { c.Regulators.Speed.SeriesKp = config.Gain(v) },
	"speed.series_ki":    func(c *config.Config, v float64) { c.Regulators.Speed.SeriesKi = config.Gain(v) },
	"observer.bandwidth": func(c *config.Config, v float64) { c.Observer.Bandwidth = v },
	"flux.gain":          func(c *config.Config, v float64) { c.Flux.Gain = v },
}

// Point is one evaluated grid point. Values follow the order of the grid's
// parameter names.
type Point struct {
	Values []float64
	Metric float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
	log        *zap.Logger
}

func NewGridSearch(params []string, ranges [][]float64, workers int, log *zap.Logger) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, dynamo.NewConfigurationError("grid", "%d parameters but %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := setters[name]; !ok {
			return nil, dynamo.NewConfigurationError("grid", "unknown parameter %q", name)
		}
		if len(ranges[i]) == 0 {
			return nil, dynamo.NewConfigurationError("grid", "empty range for %s", name)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: workers, log: log}, nil
}

// Search runs every grid point on a copy of base and returns the point with
// the smallest metric along with all points in grid order. Points that fail
// to build or diverge keep their error and never win.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string) (Point, []Point, error) {
	grid := g.points()
	points := make([]Point, len(grid))

	eg, ctx := errgroup.WithContext(ctx)
	if g.workers > 0 {
		eg.SetLimit(g.workers)
	}
	for i, values := range grid {
		eg.Go(func() error {
			metric, err := g.evaluate(ctx, base, values, metricName)
			points[i] = Point{Values: values, Metric: metric, Err: err}
			if err != nil {
				g.log.Debug("grid point failed", zap.Float64s("values", values), zap.Error(err))
			}
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return Point{}, points, err
	}

	best := Point{Metric: math.Inf(1), Err: fmt.Errorf("no grid point succeeded")}
	for _, p := range points {
		if p.Err == nil && p.Metric < best.Metric {
			best = p
		}
	}
	if best.Err != nil {
		return best, points, best.Err
	}
	g.log.Info("grid search done", zap.Strings("params", g.paramNames), zap.Float64s("best", best.Values), zap.Float64(metricName, best.Metric))
	return best, points, nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, values []float64, metricName string) (float64, error) {
	cfg := base.Clone()
	for i, name := range g.paramNames {
		setters[name](cfg, values[i])
	}
	p, err := cfg.Build(nil, g.log)
	if err != nil {
		return 0, err
	}
	d, err := sim.New(p, zap.NewNop())
	if err != nil {
		return 0, err
	}
	res, err := d.Run(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range res.Metrics {
		if m.Name == metricName {
			return m.Value, nil
		}
	}
	return 0, dynamo.NewConfigurationError("metric", "unknown metric %q", metricName)
}

// points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) points() [][]float64 {
	out := [][]float64{nil}
	for _, r := range g.ranges {
		next := make([][]float64, 0, len(out)*len(r))
		for _, prefix := range out {
			for _, v := range r {
				p := append(append([]float64(nil), prefix...), v)
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
