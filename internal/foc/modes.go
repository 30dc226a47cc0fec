package foc

import (
	"github.com/san-kum/acmsim/internal/dynamo"
)

type SpeedLoop string

const (
	SpeedClosed SpeedLoop = "closed"
	SpeedOpen   SpeedLoop = "open"
)

// DAxisPolicy decides the d-axis current command of a PMSM.
type DAxisPolicy string

const (
	DAxisZero           DAxisPolicy = "zero"
	DAxisFieldWeakening DAxisPolicy = "field_weakening"
	DAxisCommanded      DAxisPolicy = "commanded"
)

type FrameSource string

const (
	FrameMeasured FrameSource = "measured"
	FrameFlux     FrameSource = "flux"
)

type SpeedSource string

const (
	SpeedMeasured SpeedSource = "measured"
	SpeedObserver SpeedSource = "observer"
)

type FluxEstimation string

const (
	FluxNone           FluxEstimation = "none"
	FluxSaturationTime FluxEstimation = "saturation_time"
)

type Excitation string

const (
	ExcitationNone  Excitation = "none"
	ExcitationSweep Excitation = "sweep"
)

type Transform string

const (
	AmplitudeInvariant Transform = "amplitude_invariant"
	PowerInvariant     Transform = "power_invariant"
)

// parse maps s onto one of the allowed values. The empty string selects the
// first one.
func parse[T ~string](field, s string, allowed ...T) (T, error) {
	if s == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if string(a) == s {
			return a, nil
		}
	}
	return "", dynamo.NewConfigurationError(field, "unknown value %q, want one of %v", s, allowed)
}

func ParseSpeedLoop(s string) (SpeedLoop, error) {
	return parse("control.speed_loop", s, SpeedClosed, SpeedOpen)
}

func ParseDAxisPolicy(s string) (DAxisPolicy, error) {
	return parse("control.d_axis", s, DAxisZero, DAxisFieldWeakening, DAxisCommanded)
}

func ParseFrameSource(s string) (FrameSource, error) {
	return parse("control.frame_source", s, FrameMeasured, FrameFlux)
}

func ParseSpeedSource(s string) (SpeedSource, error) {
	return parse("control.speed_source", s, SpeedMeasured, SpeedObserver)
}

func ParseFluxEstimation(s string) (FluxEstimation, error) {
	return parse("control.flux_estimation", s, FluxNone, FluxSaturationTime)
}

func ParseExcitation(s string) (Excitation, error) {
	return parse("control.excitation", s, ExcitationNone, ExcitationSweep)
}

func ParseTransform(s string) (Transform, error) {
	return parse("control.transform", s, AmplitudeInvariant, PowerInvariant)
}

// TorqueGain is the factor between dq quantities and torque for the transform.
func (t Transform) TorqueGain() float64 {
	if t == PowerInvariant {
		return 1.0
	}
	return 1.5
}
