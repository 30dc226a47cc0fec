package config

import (
	"sort"

	"github.com/san-kum/acmsim/internal/automation"
)

// Presets are complete configurations by name. Use GetPreset for a copy
// that is safe to modify.
var Presets = map[string]*Config{
	"pmsm":          tutorialPMSM(),
	"pmsm_default":  DefaultConfig(),
	"pmsm_observer": observerPMSM(),
	"induction":     inductionMachine(),
}

// tutorialPMSM is a 22 pole pair outer-rotor motor on a 5 V bus.
func tutorialPMSM() *Config {
	cfg := DefaultConfig()
	cfg.Name = "pmsm"
	cfg.Machine = MachineConfig{
		PolePairs:    22,
		RatedCurrent: 1.3 * 6 / 1.414,
		Resistance:   0.035,
		Ld:           3.6e-5,
		Lq:           3.6e-5,
		KE:           0.0125,
		Inertia:      0.44e-4,
	}
	cfg.Inverter.DCBusVoltage = 5
	cfg.Timing.Duration = 1.2
	cfg.Regulators.Current.SeriesKp = Gain(0.226)
	cfg.Regulators.Current.SeriesKi = Gain(972)
	cfg.Regulators.Speed.SeriesKp = Gain(0.00366)
	cfg.Regulators.Speed.SeriesKi = Gain(50)
	cfg.Control.Commands = "schedule"
	cfg.Schedule = automation.Schedule{
		{Until: 0.2, SpeedRPM: value(50), ID: value(0)},
		{Until: 1.0, LoadTorque: value(0.2)},
		{Until: 1e9, SpeedRPM: value(-50)},
	}
	return cfg
}

func observerPMSM() *Config {
	cfg := DefaultConfig()
	cfg.Name = "pmsm_observer"
	cfg.Control.SpeedSource = "observer"
	cfg.Observer.Order = 3
	cfg.Observer.Bandwidth = DefaultObserverBandwidth
	cfg.Timing.Duration = 0.6
	cfg.Control.Commands = "schedule"
	cfg.Schedule = automation.Schedule{
		{Until: 0.3, SpeedRPM: value(200)},
		{Until: 1e9, LoadTorque: value(0.5)},
	}
	return cfg
}

func inductionMachine() *Config {
	cfg := DefaultConfig()
	cfg.Name = "induction"
	cfg.Machine = MachineConfig{
		PolePairs:       2,
		RatedCurrent:    5,
		Resistance:      3,
		Ld:              0.4,
		Lq:              0.04,
		RotorResistance: 2.5,
		Inertia:         0.05,
	}
	cfg.Control.CommandedFlux = 0.9
	cfg.Inverter.DCBusVoltage = 600
	cfg.Timing.Duration = 2.0
	cfg.Regulators.Current.SeriesKp = Gain(75)
	cfg.Regulators.Current.SeriesKi = Gain(75)
	cfg.Regulators.Speed.SeriesKp = Gain(0.29)
	cfg.Regulators.Speed.SeriesKi = Gain(6)
	cfg.Control.Commands = "schedule"
	cfg.Schedule = automation.Schedule{
		{Until: 0.8, SpeedRPM: value(0)},
		{Until: 1.5, SpeedRPM: value(300)},
		{Until: 1e9, LoadTorque: value(2)},
	}
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func value(v float64) *float64 { return &v }
