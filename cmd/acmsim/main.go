package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/acmsim/internal/analysis"
	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/export"
	"github.com/san-kum/acmsim/internal/observability"
	"github.com/san-kum/acmsim/internal/optim"
	"github.com/san-kum/acmsim/internal/sim"
	"github.com/san-kum/acmsim/internal/storage"
	"github.com/san-kum/acmsim/internal/trace"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	dataDir    string
	preset     string
	configFile string
	duration   float64
	channels   []string
	inverter   string
	fineSteps  int
	decimation int
	logLevel   string
	autoTune   bool

	csvPath      string
	jsonPath     string
	svgPath      string
	plot         bool
	plotChannels []string
	spectrum     string
	save         bool

	scales  []float64
	workers int

	kpGrid []float64
	kiGrid []float64
	metric string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "acmsim",
		Short:        "field-oriented control simulator for AC machines",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".acmsim", "data directory for saved runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&csvPath, "csv", "", "write the trace as csv (- for stdout)")
	runCmd.Flags().StringVar(&jsonPath, "json", "", "write the trace as json (- for stdout)")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write a strip chart of the plotted channels")
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot channels in the terminal")
	runCmd.Flags().StringSliceVar(&plotChannels, "plot-channels", []string{"plant.speed_rpm", "cmd.speed_rpm", "ctrl.iq"}, "channels to plot")
	runCmd.Flags().StringVar(&spectrum, "spectrum", "", "print the spectrum of a channel")
	runCmd.Flags().BoolVar(&save, "save", false, "save the run under the data directory")

	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "list trace channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "index\tname\tunit\n")
			for _, ch := range trace.All() {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", int(ch), ch.Name(), ch.Unit())
			}
			return tw.Flush()
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(cmd.OutOrStdout(), "  %-14s npp=%g R=%g Ld=%g Lq=%g Rreq=%g\n",
					name, p.Machine.PolePairs, p.Machine.Resistance, p.Machine.Ld, p.Machine.Lq, p.Machine.RotorResistance)
			}
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate [config.yaml]",
		Short: "check a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  validateConfig,
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "print the effective configuration as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	addConfigFlags(dumpCmd)

	mismatchCmd := &cobra.Command{
		Use:   "mismatch",
		Short: "run the flux estimator against scaled resistance estimates",
		Args:  cobra.NoArgs,
		RunE:  runMismatch,
	}
	addConfigFlags(mismatchCmd)
	mismatchCmd.Flags().Float64SliceVar(&scales, "scales", []float64{0.8, 0.9, 1, 1.1, 1.2}, "resistance scales")
	mismatchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = one per scale)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search the speed loop gains",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&kpGrid, "kp", nil, "speed loop series kp values")
	tuneCmd.Flags().Float64SliceVar(&kiGrid, "ki", nil, "speed loop series ki values")
	tuneCmd.Flags().StringVar(&metric, "metric", "speed_tracking_rms", "metric to minimise")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = unbounded)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotChannels, "channels", []string{"plant.speed_rpm", "cmd.speed_rpm", "ctrl.iq"}, "channels to plot")

	rootCmd.AddCommand(runCmd, channelsCmd, presetsCmd, validateCmd, dumpCmd, mismatchCmd, tuneCmd, listCmd, plotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "pmsm_default", "preset configuration")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml), overrides --preset")
	cmd.Flags().Float64Var(&duration, "time", 0, "simulated duration [s]")
	cmd.Flags().StringSliceVar(&channels, "channels", nil, "trace channels (default all)")
	cmd.Flags().StringVar(&inverter, "inverter", "", "inverter model: switching or ideal")
	cmd.Flags().IntVar(&fineSteps, "fine-steps", 0, "plant steps per control period")
	cmd.Flags().IntVar(&decimation, "decimation", 0, "record every n-th fine step")
	cmd.Flags().BoolVar(&autoTune, "auto-tune", false, "derive missing regulator gains")
}

// loadConfig resolves the preset or file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	} else {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	flags := cmd.Flags()
	if flags.Changed("time") {
		cfg.Timing.Duration = duration
	}
	if flags.Changed("channels") {
		cfg.Trace.Channels = channels
	}
	if flags.Changed("inverter") {
		cfg.Inverter.Model = inverter
	}
	if flags.Changed("fine-steps") {
		cfg.Timing.FineStepsPerControl = fineSteps
	}
	if flags.Changed("decimation") {
		cfg.Trace.Decimation = decimation
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func build(cfg *config.Config, log *zap.Logger) (sim.Params, error) {
	var tuner config.Tuner
	if autoTune {
		tuner = config.NewBandwidthTuner()
	}
	return cfg.Build(tuner, log)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := observability.NewStderr(cfg.Logging)
	defer observability.Sync(log)

	p, err := build(cfg, log)
	if err != nil {
		return err
	}
	d, err := sim.New(p, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	result, runErr := d.Run(ctx)
	elapsed := time.Since(start)
	if result == nil || result.Trace.Len() == 0 {
		return runErr
	}

	out := cmd.OutOrStdout()
	fields := []field{
		{"preset", cfg.Name},
		{"inverter", string(p.Inverter)},
		{"fine step", fmt.Sprintf("%.3g s", p.FineStep())},
		{"simulated", fmt.Sprintf("%.4g s in %v", result.Time, elapsed.Round(time.Millisecond))},
		{"steps", strconv.Itoa(result.Steps)},
		{"final speed", fmt.Sprintf("%.2f rpm", d.Plant().SpeedRPM())},
	}
	for _, m := range result.Metrics {
		fields = append(fields, field{m.Name, fmt.Sprintf("%.6g", m.Value)})
	}
	fmt.Fprintln(os.Stderr, summary("acmsim run", fields))

	if plot {
		if err := plotBuffer(out, result.Trace, plotChannels); err != nil {
			return err
		}
	}
	if spectrum != "" {
		if err := printSpectrum(out, result.Trace, spectrum, p.FineStep()*float64(max(p.Decimation, 1))); err != nil {
			return err
		}
	}
	if csvPath != "" {
		if err := writeTo(csvPath, out, result.Trace.WriteCSV); err != nil {
			return err
		}
	}
	if jsonPath != "" {
		err := writeTo(jsonPath, out, func(w io.Writer) error {
			return storage.ExportJSON(w, cfg.Name, result)
		})
		if err != nil {
			return err
		}
	}
	if svgPath != "" {
		if err := writeSVG(svgPath, out, result.Trace, plotChannels); err != nil {
			return err
		}
	}
	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(cfg, p, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run id: %s\n", runID)
	}
	return runErr
}

// writeTo runs write against stdout for "-" and a new file otherwise.
func writeTo(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func plotBuffer(w io.Writer, buf *trace.Buffer, names []string) error {
	for _, name := range names {
		values, err := buf.ColumnByName(name)
		if err != nil {
			return err
		}
		ch, _ := trace.Lookup(name)
		s := trace.Stats(values)
		caption := fmt.Sprintf("%s [%s]  min %.4g  max %.4g  rms %.4g", name, ch.Unit(), s.Min, s.Max, s.RMS)
		fmt.Fprintln(w, asciigraph.Plot(downsample(values, 400),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		))
		fmt.Fprintln(w)
	}
	return nil
}

func printSpectrum(w io.Writer, buf *trace.Buffer, name string, dt float64) error {
	values, err := buf.ColumnByName(name)
	if err != nil {
		return err
	}
	sp := analysis.NewSpectrum(values, dt)
	if len(sp.Magnitude) < 2 {
		return fmt.Errorf("not enough samples for a spectrum of %s", name)
	}
	fmt.Fprintln(w, asciigraph.Plot(downsample(sp.Magnitude[1:], 200),
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("spectrum of %s, dominant %.4g Hz", name, sp.Dominant())),
	))
	return nil
}

func writeSVG(path string, stdout io.Writer, buf *trace.Buffer, names []string) error {
	series := make([]export.Series, 0, len(names))
	for _, name := range names {
		values, err := buf.ColumnByName(name)
		if err != nil {
			return err
		}
		series = append(series, export.Series{Name: name, Values: values})
	}
	return writeTo(path, stdout, func(w io.Writer) error {
		return export.WriteSVG(w, buf.Time, series, 1000, 160)
	})
}

// downsample keeps at most n evenly spaced points for terminal plots.
func downsample(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = values[i*(len(values)-1)/(n-1)]
	}
	return out
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	errs := multierr.Errors(cfg.Validate())
	if len(errs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(args[0]+": ok"))
		return nil
	}
	for _, e := range errs {
		fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("  "+e.Error()))
	}
	return fmt.Errorf("%s: %d problems", args[0], len(errs))
}

func runMismatch(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := observability.NewStderr(base.Logging)
	defer observability.Sync(log)

	base.Control.FluxEstimation = "saturation_time"
	params := make([]sim.Params, 0, len(scales))
	for _, s := range scales {
		cfg := base.Clone()
		cfg.Flux.ResistanceScale = s
		cfg.Trace.Channels = []string{"flux.offset_alpha", "flux.offset_beta", "plant.speed_rpm"}
		p, err := build(cfg, log)
		if err != nil {
			return fmt.Errorf("scale %g: %w", s, err)
		}
		params = append(params, p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	results, err := sim.NewEnsemble(params, workers, log).Run(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scale\toffset_alpha\toffset_beta\tspeed_rpm\tspeed_tracking_rms\n")
	for i, res := range results {
		fmt.Fprintf(tw, "%g\t%.5g\t%.5g\t%.2f\t%.4g\n", scales[i],
			res.Trace.Last(trace.FluxOffsetAlpha),
			res.Trace.Last(trace.FluxOffsetBeta),
			res.Trace.Last(trace.PlantSpeedRPM),
			res.Metrics[0].Value)
	}
	return tw.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(kpGrid) == 0 || len(kiGrid) == 0 {
		return errors.New("both --kp and --ki need at least one value")
	}
	log := observability.NewStderr(base.Logging)
	defer observability.Sync(log)

	base.Trace.Channels = []string{"plant.speed_rpm"}
	g, err := optim.NewGridSearch([]string{"speed.series_kp", "speed.series_ki"}, [][]float64{kpGrid, kiGrid}, workers, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	best, points, err := g.Search(ctx, base, metric)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "kp\tki\t%s\n", metric)
	for _, pt := range points {
		if pt.Values == nil {
			continue
		}
		value := fmt.Sprintf("%.6g", pt.Metric)
		if pt.Err != nil {
			value = "failed: " + pt.Err.Error()
		}
		fmt.Fprintf(tw, "%g\t%g\t%s\n", pt.Values[0], pt.Values[1], value)
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, summary("best speed gains", []field{
		{"series_kp", fmt.Sprintf("%g", best.Values[0])},
		{"series_ki", fmt.Sprintf("%g", best.Values[1])},
		{metric, fmt.Sprintf("%.6g", best.Metric)},
	}))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\tname\tinverter\tduration\tsteps\ttimestamp\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4g\t%d\t%s\n",
			r.ID, r.Name, r.Inverter, r.Duration, r.Steps, r.Timestamp.Format(time.RFC3339))
	}
	return tw.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run: %s\nsamples: %d\n\n", meta.ID, len(tr.Time))
	for _, name := range plotChannels {
		values, ok := tr.Column(name)
		if !ok {
			return fmt.Errorf("run %s did not record %s (recorded: %s)", meta.ID, name, strings.Join(tr.Names, ", "))
		}
		fmt.Fprintln(out, asciigraph.Plot(downsample(values, 400),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name),
		))
		fmt.Fprintln(out)
	}
	return nil
}
