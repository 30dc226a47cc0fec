package machine

// LoadModel supplies the shaft load torque before each fine step.
type LoadModel interface {
	// Torque returns the load torque given the commanded torque and the mechanical speed.
	Torque(commanded, omegaMech float64) float64
}

// ConstantLoad passes the commanded load torque straight through.
type ConstantLoad struct{}

func (ConstantLoad) Torque(commanded, omegaMech float64) float64 {
	return commanded
}

// VehicleLoad is a single-wheel road load: aerodynamic drag plus rolling resistance.
type VehicleLoad struct {
	Mass         float64 `yaml:"mass"`
	FrontalArea  float64 `yaml:"frontal_area"`
	DragCoeff    float64 `yaml:"drag_coefficient"`
	RollingCoeff float64 `yaml:"rolling_coefficient"`
	WheelRadius  float64 `yaml:"wheel_radius"`
	Gravity      float64 `yaml:"gravity"`
}

func DefaultVehicleLoad() VehicleLoad {
	return VehicleLoad{
		Mass:         1500,
		FrontalArea:  2.5,
		DragCoeff:    0.37,
		RollingCoeff: 0.015,
		WheelRadius:  0.297,
		Gravity:      9.8,
	}
}

// SpeedKPH converts the wheel speed to vehicle speed in km/h.
func (v VehicleLoad) SpeedKPH(omegaMech float64) float64 {
	return omegaMech * v.WheelRadius * 3.6
}

func (v VehicleLoad) Torque(commanded, omegaMech float64) float64 {
	speed := v.SpeedKPH(omegaMech)
	drag := v.DragCoeff * v.FrontalArea * speed * speed / 21.15
	rolling := v.Mass * v.Gravity * v.RollingCoeff
	return (drag + rolling) * 0.5 * v.WheelRadius
}

// Inertia is the equivalent rotating inertia seen by one wheel motor.
func (v VehicleLoad) Inertia() float64 {
	return v.Mass * v.WheelRadius * v.WheelRadius * 0.25
}
