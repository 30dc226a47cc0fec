package config

import (
	"fmt"
	"os"

	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/machine"
	"gopkg.in/yaml.v3"
)

const (
	DefaultControlPeriod     = 1e-4
	DefaultFineSteps         = 500
	DefaultVelocityRatio     = 5
	DefaultDuration          = 1.0
	DefaultKiFactor          = 10.0
	DefaultOverloadFactor    = 3.0
	DefaultObserverBandwidth = 300.0
)

type Config struct {
	Name           string               `yaml:"name"`
	Machine        MachineConfig        `yaml:"machine"`
	Inverter       InverterConfig       `yaml:"inverter"`
	Timing         TimingConfig         `yaml:"timing"`
	Regulators     RegulatorsConfig     `yaml:"regulators"`
	Control        ControlConfig        `yaml:"control"`
	Observer       ObserverConfig       `yaml:"observer"`
	Flux           FluxConfig           `yaml:"flux"`
	Sweep          SweepConfig          `yaml:"sweep"`
	FieldWeakening FieldWeakeningConfig `yaml:"field_weakening"`
	Load           LoadConfig           `yaml:"load"`
	Schedule       automation.Schedule  `yaml:"schedule,omitempty"`
	Trace          TraceConfig          `yaml:"trace"`
	Logging        LoggingConfig        `yaml:"logging"`
}

type MachineConfig struct {
	PolePairs       float64 `yaml:"pole_pairs"`
	RatedCurrent    float64 `yaml:"rated_current"`
	Resistance      float64 `yaml:"resistance"`
	Ld              float64 `yaml:"ld"`
	Lq              float64 `yaml:"lq"`
	KE              float64 `yaml:"ke"`
	RotorResistance float64 `yaml:"rotor_resistance"`
	Inertia         float64 `yaml:"inertia"`
}

type InverterConfig struct {
	DCBusVoltage float64 `yaml:"dc_bus_voltage"`
	Model        string  `yaml:"model"`
	DeadTime     float64 `yaml:"dead_time"`
	MinDuty      float64 `yaml:"min_duty"`
	MaxDuty      float64 `yaml:"max_duty"`
	Latch        string  `yaml:"latch"`
}

type TimingConfig struct {
	ControlPeriod       float64 `yaml:"control_period"`
	FineStepsPerControl int     `yaml:"fine_steps_per_control"`
	VelocityLoopRatio   int     `yaml:"velocity_loop_ratio"`
	Duration            float64 `yaml:"duration"`
}

// RegulatorConfig holds series-form PI gains. A nil gain asks the Tuner
// to derive it.
type RegulatorConfig struct {
	SeriesKp    *float64 `yaml:"series_kp"`
	SeriesKi    *float64 `yaml:"series_ki"`
	Kd          float64  `yaml:"kd"`
	Tau         float64  `yaml:"tau"`
	Integration string   `yaml:"integration"`

	// current loop only
	KiFactorWithoutDecoupling float64 `yaml:"ki_factor_without_decoupling,omitempty"`
	// speed loop only
	OverloadFactor float64 `yaml:"overload_factor,omitempty"`
}

type RegulatorsConfig struct {
	Current RegulatorConfig `yaml:"current"`
	Speed   RegulatorConfig `yaml:"speed"`
}

type ControlConfig struct {
	SpeedLoop      string  `yaml:"speed_loop"`
	Decoupling     bool    `yaml:"decoupling"`
	Excitation     string  `yaml:"excitation"`
	DAxis          string  `yaml:"d_axis"`
	Commands       string  `yaml:"commands"`
	FrameSource    string  `yaml:"frame_source"`
	SpeedSource    string  `yaml:"speed_source"`
	FluxEstimation string  `yaml:"flux_estimation"`
	Transform      string  `yaml:"transform"`
	CommandedFlux  float64 `yaml:"commanded_flux"`
}

type ObserverConfig struct {
	Order     int       `yaml:"order"`
	Bandwidth float64   `yaml:"bandwidth"`
	Gains     []float64 `yaml:"gains,omitempty"`
}

type FluxConfig struct {
	Gain            float64 `yaml:"gain"`
	RealtimeGain    float64 `yaml:"realtime_gain"`
	AdaptiveMargin  bool    `yaml:"adaptive_margin"`
	ResistanceScale float64 `yaml:"resistance_scale"`
}

type SweepConfig struct {
	SpeedAmplitudeRPM float64 `yaml:"speed_amplitude_rpm"`
	CurrentAmplitude  float64 `yaml:"current_amplitude"`
	StepHz            float64 `yaml:"step_hz"`
	CeilingHz         float64 `yaml:"ceiling_hz"`
}

type FieldWeakeningConfig struct {
	StartRPM        float64 `yaml:"start_rpm"`
	FullRPM         float64 `yaml:"full_rpm"`
	MaxDemagCurrent float64 `yaml:"max_demag_current"`
}

type LoadConfig struct {
	Model   string              `yaml:"model"`
	Vehicle machine.VehicleLoad `yaml:"vehicle"`
}

type TraceConfig struct {
	Channels   []string `yaml:"channels,omitempty"`
	Decimation int      `yaml:"decimation"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file,omitempty"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig is the pmsm_default preset.
func DefaultConfig() *Config {
	return &Config{
		Name: "pmsm_default",
		Machine: MachineConfig{
			PolePairs:    4,
			RatedCurrent: 3,
			Resistance:   1.1,
			Ld:           5e-3,
			Lq:           6e-3,
			KE:           0.095,
			Inertia:      6.168e-4,
		},
		Inverter: InverterConfig{
			DCBusVoltage: 300,
			Model:        "switching",
			DeadTime:     1e-6,
			MinDuty:      0.04,
			MaxDuty:      0.96,
			Latch:        "valley",
		},
		Timing: TimingConfig{
			ControlPeriod:       DefaultControlPeriod,
			FineStepsPerControl: DefaultFineSteps,
			VelocityLoopRatio:   DefaultVelocityRatio,
			Duration:            DefaultDuration,
		},
		Regulators: RegulatorsConfig{
			Current: RegulatorConfig{
				SeriesKp:                  Gain(18.85),
				SeriesKi:                  Gain(183.3),
				Integration:               "tustin",
				KiFactorWithoutDecoupling: DefaultKiFactor,
			},
			Speed: RegulatorConfig{
				SeriesKp:       Gain(0.034),
				SeriesKi:       Gain(25),
				Integration:    "tustin",
				OverloadFactor: DefaultOverloadFactor,
			},
		},
		Control: ControlConfig{
			SpeedLoop:      "closed",
			Decoupling:     true,
			Excitation:     "none",
			DAxis:          "zero",
			Commands:       "builtin",
			FrameSource:    "measured",
			SpeedSource:    "measured",
			FluxEstimation: "none",
			Transform:      "amplitude_invariant",
		},
		Observer: ObserverConfig{
			Order:     3,
			Bandwidth: DefaultObserverBandwidth,
		},
		Flux: FluxConfig{
			Gain:            10,
			ResistanceScale: 1,
		},
		Sweep: SweepConfig{
			SpeedAmplitudeRPM: 100,
			CurrentAmplitude:  1,
			StepHz:            1,
			CeilingHz:         100,
		},
		FieldWeakening: FieldWeakeningConfig{
			StartRPM:        450,
			FullRPM:         1000,
			MaxDemagCurrent: 60,
		},
		Load: LoadConfig{
			Model:   "constant",
			Vehicle: machine.DefaultVehicleLoad(),
		},
		Trace: TraceConfig{
			Decimation: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Gain returns a pointer to v for the series gain fields.
func Gain(v float64) *float64 { return &v }

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Regulators.Current = c.Regulators.Current.clone()
	out.Regulators.Speed = c.Regulators.Speed.clone()
	out.Observer.Gains = append([]float64(nil), c.Observer.Gains...)
	out.Schedule = append(automation.Schedule(nil), c.Schedule...)
	out.Trace.Channels = append([]string(nil), c.Trace.Channels...)
	return &out
}

func (r RegulatorConfig) clone() RegulatorConfig {
	if r.SeriesKp != nil {
		r.SeriesKp = Gain(*r.SeriesKp)
	}
	if r.SeriesKi != nil {
		r.SeriesKi = Gain(*r.SeriesKi)
	}
	return r
}

// Load reads a yaml file over DefaultConfig, so omitted fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
