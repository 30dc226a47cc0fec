package trace

import (
	"fmt"

	"github.com/san-kum/acmsim/internal/dynamo"
)

// Version identifies the channel layout. It changes whenever a channel is
// added, removed or reordered.
const Version = 1

// Channel is an index into the closed set of recordable signals.
// Indices are stable within a Version.
type Channel int

const (
	PlantThetaD Channel = iota
	PlantSpeedRPM
	PlantOmegaElec
	PlantKA
	PlantID
	PlantIQ
	PlantIAlpha
	PlantIBeta
	PlantIA
	PlantIB
	PlantIC
	PlantUAlpha
	PlantUBeta
	PlantUD
	PlantUQ
	PlantTem
	PlantTLoad
	PlantOmegaSlip
	PlantOmegaSyn

	CtrlTimebase
	CtrlTheta
	CtrlSpeedRPM
	CtrlCos
	CtrlSin
	CtrlID
	CtrlIQ
	CtrlKA
	CtrlTem
	CtrlOmegaSlip
	CtrlOmegaSyn
	CmdSpeedRPM
	CmdID
	CmdIQ
	CmdUD
	CmdUQ
	CmdUAlpha
	CmdUBeta
	CmdPsi

	FluxPsi2Alpha
	FluxPsi2Beta
	FluxOffsetAlpha
	FluxOffsetBeta
	FluxSatMaxAlpha
	FluxSatMinAlpha
	FluxSatMaxBeta
	FluxSatMinBeta
	FluxExtraLimit

	ObsTheta
	ObsSpeedRPM
	ObsDisturbance
	ObsError

	GateCounter
	GateDutyA
	GateDutyB
	GateDutyC
	GateSector
	GateTerminalA
	GateTerminalB
	GateTerminalC

	NumChannels
)

type def struct {
	name string
	unit string
	get  func(p *Probe) float64
}

var defs = [NumChannels]def{
	PlantThetaD:    {"plant.theta_d", "rad", func(p *Probe) float64 { return dynamo.Wrap2Pi(p.Plant.ThetaD) }},
	PlantSpeedRPM:  {"plant.speed_rpm", "rpm", func(p *Probe) float64 { return p.Plant.SpeedRPM() }},
	PlantOmegaElec: {"plant.omega_elec", "rad/s", func(p *Probe) float64 { return p.Plant.OmegaElec }},
	PlantKA:        {"plant.ka", "Wb", func(p *Probe) float64 { return p.Plant.KA() }},
	PlantID:        {"plant.id", "A", func(p *Probe) float64 { return p.Plant.ID() }},
	PlantIQ:        {"plant.iq", "A", func(p *Probe) float64 { return p.Plant.IQ() }},
	PlantIAlpha:    {"plant.ialpha", "A", func(p *Probe) float64 { return p.Plant.IAlpha }},
	PlantIBeta:     {"plant.ibeta", "A", func(p *Probe) float64 { return p.Plant.IBeta }},
	PlantIA:        {"plant.ia", "A", func(p *Probe) float64 { return p.Plant.Ia }},
	PlantIB:        {"plant.ib", "A", func(p *Probe) float64 { return p.Plant.Ib }},
	PlantIC:        {"plant.ic", "A", func(p *Probe) float64 { return p.Plant.Ic }},
	PlantUAlpha:    {"plant.ualpha", "V", func(p *Probe) float64 { return p.Plant.UAlpha }},
	PlantUBeta:     {"plant.ubeta", "V", func(p *Probe) float64 { return p.Plant.UBeta }},
	PlantUD:        {"plant.ud", "V", func(p *Probe) float64 { return p.Plant.Ud }},
	PlantUQ:        {"plant.uq", "V", func(p *Probe) float64 { return p.Plant.Uq }},
	PlantTem:       {"plant.tem", "Nm", func(p *Probe) float64 { return p.Plant.Tem }},
	PlantTLoad:     {"plant.tload", "Nm", func(p *Probe) float64 { return p.Plant.TLoad }},
	PlantOmegaSlip: {"plant.omega_slip", "rad/s", func(p *Probe) float64 { return p.Plant.OmegaSlip }},
	PlantOmegaSyn:  {"plant.omega_syn", "rad/s", func(p *Probe) float64 { return p.Plant.OmegaSyn }},

	CtrlTimebase:  {"ctrl.timebase", "s", func(p *Probe) float64 { return p.Ctrl.Timebase }},
	CtrlTheta:     {"ctrl.theta", "rad", func(p *Probe) float64 { return p.Ctrl.Theta }},
	CtrlSpeedRPM:  {"ctrl.speed_rpm", "rpm", func(p *Probe) float64 { return p.Ctrl.Omega * 60 / (dynamo.TwoPi * p.Ctrl.Machine.PolePairs) }},
	CtrlCos:       {"ctrl.cos", "", func(p *Probe) float64 { return p.Ctrl.Cos }},
	CtrlSin:       {"ctrl.sin", "", func(p *Probe) float64 { return p.Ctrl.Sin }},
	CtrlID:        {"ctrl.id", "A", func(p *Probe) float64 { return p.Ctrl.IDQ[0] }},
	CtrlIQ:        {"ctrl.iq", "A", func(p *Probe) float64 { return p.Ctrl.IDQ[1] }},
	CtrlKA:        {"ctrl.ka", "Wb", func(p *Probe) float64 { return p.Ctrl.KA }},
	CtrlTem:       {"ctrl.tem", "Nm", func(p *Probe) float64 { return p.Ctrl.Tem }},
	CtrlOmegaSlip: {"ctrl.omega_slip", "rad/s", func(p *Probe) float64 { return p.Ctrl.OmegaSlip }},
	CtrlOmegaSyn:  {"ctrl.omega_syn", "rad/s", func(p *Probe) float64 { return p.Ctrl.OmegaSyn }},
	CmdSpeedRPM:   {"cmd.speed_rpm", "rpm", func(p *Probe) float64 { return p.Ctrl.Cmd.SpeedRPM }},
	CmdID:         {"cmd.id", "A", func(p *Probe) float64 { return p.Ctrl.Cmd.ID }},
	CmdIQ:         {"cmd.iq", "A", func(p *Probe) float64 { return p.Ctrl.Cmd.IQ }},
	CmdUD:         {"cmd.ud", "V", func(p *Probe) float64 { return p.Ctrl.CmdUDQ[0] }},
	CmdUQ:         {"cmd.uq", "V", func(p *Probe) float64 { return p.Ctrl.CmdUDQ[1] }},
	CmdUAlpha:     {"cmd.ualpha", "V", func(p *Probe) float64 { return p.Ctrl.CmdUAB[0] }},
	CmdUBeta:      {"cmd.ubeta", "V", func(p *Probe) float64 { return p.Ctrl.CmdUAB[1] }},
	CmdPsi:        {"cmd.psi", "Wb", func(p *Probe) float64 { return p.Ctrl.CmdPsi }},

	FluxPsi2Alpha:   {"flux.psi2_alpha", "Wb", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.Psi2[0] })},
	FluxPsi2Beta:    {"flux.psi2_beta", "Wb", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.Psi2[1] })},
	FluxOffsetAlpha: {"flux.offset_alpha", "V", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.Offset()[0] })},
	FluxOffsetBeta:  {"flux.offset_beta", "V", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.Offset()[1] })},
	FluxSatMaxAlpha: {"flux.sat_max_alpha", "s", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.SatMax[0] })},
	FluxSatMinAlpha: {"flux.sat_min_alpha", "s", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.SatMin[0] })},
	FluxSatMaxBeta:  {"flux.sat_max_beta", "s", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.SatMax[1] })},
	FluxSatMinBeta:  {"flux.sat_min_beta", "s", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.SatMin[1] })},
	FluxExtraLimit:  {"flux.extra_limit", "Wb", fluxField(func(p *Probe) float64 { return p.Ctrl.Estimator.ExtraLimit })},

	ObsTheta:       {"obs.theta", "rad", obsField(func(p *Probe) float64 { return p.Ctrl.SpeedObserver.Theta() })},
	ObsSpeedRPM:    {"obs.speed_rpm", "rpm", obsField(func(p *Probe) float64 { return p.Ctrl.SpeedObserver.Omega() * 60 / (dynamo.TwoPi * p.Ctrl.Machine.PolePairs) })},
	ObsDisturbance: {"obs.disturbance", "Nm", obsField(func(p *Probe) float64 { return p.Ctrl.SpeedObserver.Disturbance() })},
	ObsError:       {"obs.error", "rad", obsField(func(p *Probe) float64 { return p.Ctrl.SpeedObserver.Error })},

	GateCounter:   {"gate.counter", "count", gateField(func(p *Probe) float64 { return float64(p.Gate.Counter) })},
	GateDutyA:     {"gate.duty_a", "", func(p *Probe) float64 { return p.Duties.D[0] }},
	GateDutyB:     {"gate.duty_b", "", func(p *Probe) float64 { return p.Duties.D[1] }},
	GateDutyC:     {"gate.duty_c", "", func(p *Probe) float64 { return p.Duties.D[2] }},
	GateSector:    {"gate.sector", "", func(p *Probe) float64 { return float64(p.Duties.Sector) }},
	GateTerminalA: {"gate.terminal_a", "V", gateField(func(p *Probe) float64 { return p.Gate.Terminal[0] })},
	GateTerminalB: {"gate.terminal_b", "V", gateField(func(p *Probe) float64 { return p.Gate.Terminal[1] })},
	GateTerminalC: {"gate.terminal_c", "V", gateField(func(p *Probe) float64 { return p.Gate.Terminal[2] })},
}

// Signals of a component that is not part of the run read as zero.
func fluxField(get func(p *Probe) float64) func(p *Probe) float64 {
	return func(p *Probe) float64 {
		if p.Ctrl.Estimator == nil {
			return 0
		}
		return get(p)
	}
}

func obsField(get func(p *Probe) float64) func(p *Probe) float64 {
	return func(p *Probe) float64 {
		if p.Ctrl.SpeedObserver == nil {
			return 0
		}
		return get(p)
	}
}

func gateField(get func(p *Probe) float64) func(p *Probe) float64 {
	return func(p *Probe) float64 {
		if p.Gate == nil {
			return 0
		}
		return get(p)
	}
}

func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

func (c Channel) Name() string {
	if !c.Valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return defs[c].name
}

func (c Channel) Unit() string {
	if !c.Valid() {
		return ""
	}
	return defs[c].unit
}

func (c Channel) String() string {
	return c.Name()
}

// Value reads the channel from the probe.
func (c Channel) Value(p *Probe) float64 {
	return defs[c].get(p)
}

// All returns every channel in index order.
func All() []Channel {
	out := make([]Channel, NumChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

func Lookup(name string) (Channel, bool) {
	for i := range defs {
		if defs[i].name == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// Resolve maps channel names to channels in the given order. An empty list
// selects every channel.
func Resolve(names []string) ([]Channel, error) {
	if len(names) == 0 {
		return All(), nil
	}
	out := make([]Channel, 0, len(names))
	for _, n := range names {
		ch, ok := Lookup(n)
		if !ok {
			return nil, dynamo.NewConfigurationError("trace.channels", "unknown channel %q", n)
		}
		out = append(out, ch)
	}
	return out, nil
}
