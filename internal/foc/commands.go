package foc

// Commands are the operator set-points the command hook may change at every
// controller tick.
type Commands struct {
	SpeedRPM float64
	// ID and IQ are the dq current commands [A]. IQ is overwritten by the
	// closed speed loop, ID by the d-axis policy unless it is Commanded.
	ID float64
	IQ float64
	// LoadTorque is applied to the plant by the constant load model [Nm].
	LoadTorque float64
	// SweepSpeedRPM is the amplitude of the speed sweep.
	SweepSpeedRPM float64
}
