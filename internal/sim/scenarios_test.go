package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/acmsim/internal/automation"
	"github.com/san-kum/acmsim/internal/config"
	"github.com/san-kum/acmsim/internal/sim"
	"github.com/san-kum/acmsim/internal/trace"
	"go.uber.org/zap"
)

func rpm(v float64) *float64 { return &v }

// simulate builds a preset with the ideal inverter, edits it and runs it.
// edit may switch the inverter back.
func simulate(name string, edit func(*config.Config)) *trace.Buffer {
	cfg := config.GetPreset(name)
	Expect(cfg).NotTo(BeNil())
	cfg.Inverter.Model = "ideal"
	cfg.Timing.FineStepsPerControl = 10
	edit(cfg)

	p, err := cfg.Build(nil, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	d, err := sim.New(p, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	res, err := d.Run(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return res.Trace
}

func column(b *trace.Buffer, name string) []float64 {
	values, err := b.ColumnByName(name)
	Expect(err).NotTo(HaveOccurred())
	return values
}

var _ = Describe("PMSM speed step", Ordered, func() {
	var buf *trace.Buffer

	BeforeAll(func() {
		buf = simulate("pmsm_default", func(cfg *config.Config) {
			cfg.Timing.Duration = 0.25
			cfg.Control.Commands = "schedule"
			cfg.Schedule = automation.Schedule{{Until: 1e9, SpeedRPM: rpm(200)}}
			cfg.Trace.Channels = []string{"cmd.iq", "ctrl.iq", "plant.speed_rpm", "ctrl.cos", "ctrl.sin"}
		})
	})

	It("tracks the q-axis current reference after 0.2 s", func() {
		cmdIQ, iq := column(buf, "cmd.iq"), column(buf, "ctrl.iq")
		for i, t := range buf.Time {
			if t >= 0.2 {
				Expect(math.Abs(cmdIQ[i]-iq[i])).To(BeNumerically("<", 0.05), "t=%g", t)
			}
		}
	})

	It("reaches the commanded speed", func() {
		speed := column(buf, "plant.speed_rpm")
		for i, t := range buf.Time {
			if t >= 0.2 {
				Expect(speed[i]).To(BeNumerically("~", 200, 2), "t=%g", t)
			}
		}
	})

	It("keeps the frame on the unit circle", func() {
		cos, sin := column(buf, "ctrl.cos"), column(buf, "ctrl.sin")
		for i := range cos {
			Expect(cos[i]*cos[i] + sin[i]*sin[i]).To(BeNumerically("~", 1, 1e-9))
		}
	})
})

var _ = Describe("Induction machine load step", Ordered, func() {
	var buf *trace.Buffer

	BeforeAll(func() {
		buf = simulate("induction", func(cfg *config.Config) {
			cfg.Trace.Decimation = 100
			cfg.Trace.Channels = []string{"plant.omega_slip", "plant.ka", "plant.speed_rpm"}
		})
	})

	It("develops slip under load", func() {
		Expect(math.Abs(buf.Last(trace.PlantOmegaSlip))).To(BeNumerically(">", 0.5))
	})

	It("settles the active flux to the command", func() {
		Expect(buf.Last(trace.PlantKA)).To(BeNumerically("~", 0.9, 0.02))
	})

	It("holds the speed against the load", func() {
		Expect(buf.Last(trace.PlantSpeedRPM)).To(BeNumerically("~", 300, 5))
	})
})

var _ = Describe("Observer speed feedback", Ordered, func() {
	var buf *trace.Buffer

	BeforeAll(func() {
		buf = simulate("pmsm_observer", func(cfg *config.Config) {
			cfg.Trace.Channels = []string{"plant.speed_rpm", "obs.speed_rpm"}
		})
	})

	It("regulates speed through a load step", func() {
		speed, est := column(buf, "plant.speed_rpm"), column(buf, "obs.speed_rpm")
		for i, t := range buf.Time {
			if t >= 0.55 {
				Expect(speed[i]).To(BeNumerically("~", 200, 1), "t=%g", t)
				Expect(est[i]).To(BeNumerically("~", speed[i], 1), "t=%g", t)
			}
		}
	})
})

var _ = Describe("PMSM speed step in the estimated flux frame", Ordered, func() {
	var buf *trace.Buffer

	BeforeAll(func() {
		buf = simulate("pmsm_default", func(cfg *config.Config) {
			cfg.Timing.Duration = 0.25
			cfg.Control.Commands = "schedule"
			cfg.Control.FluxEstimation = "saturation_time"
			cfg.Control.FrameSource = "flux"
			cfg.Schedule = automation.Schedule{{Until: 1e9, SpeedRPM: rpm(200)}}
			cfg.Trace.Channels = []string{"ctrl.cos", "ctrl.sin", "plant.speed_rpm"}
		})
	})

	It("keeps the estimated frame on the unit circle from the first sample", func() {
		cos, sin := column(buf, "ctrl.cos"), column(buf, "ctrl.sin")
		Expect(cos).NotTo(BeEmpty())
		for i, t := range buf.Time {
			Expect(cos[i]*cos[i]+sin[i]*sin[i]).To(BeNumerically("~", 1, 1e-9), "t=%g", t)
		}
	})

	It("starts the drive and reaches the commanded speed", func() {
		Expect(buf.Last(trace.PlantSpeedRPM)).To(BeNumerically("~", 200, 2))
	})
})

var _ = Describe("PMSM speed step through the switching inverter", Ordered, func() {
	var buf *trace.Buffer

	BeforeAll(func() {
		buf = simulate("pmsm_default", func(cfg *config.Config) {
			cfg.Inverter.Model = "switching"
			cfg.Timing.FineStepsPerControl = 500
			cfg.Timing.Duration = 0.25
			cfg.Control.Commands = "schedule"
			cfg.Schedule = automation.Schedule{{Until: 1e9, SpeedRPM: rpm(200)}}
			cfg.Trace.Decimation = 50
			cfg.Trace.Channels = []string{"cmd.iq", "ctrl.iq", "plant.speed_rpm"}
		})
	})

	It("tracks the q-axis current reference despite dead time", func() {
		cmdIQ, iq := column(buf, "cmd.iq"), column(buf, "ctrl.iq")
		for i, t := range buf.Time {
			if t >= 0.2 {
				Expect(math.Abs(cmdIQ[i]-iq[i])).To(BeNumerically("<", 0.05), "t=%g", t)
			}
		}
	})

	It("reaches the commanded speed", func() {
		Expect(buf.Last(trace.PlantSpeedRPM)).To(BeNumerically("~", 200, 2))
	})
})
