// Package control provides the discrete regulator shared by the current and
// speed loops of the drive.
//
//   - [PID]: Tustin (or forward-Euler) PID with integrator clamping
//
// # Usage
//
//	reg := control.NewPID(kp, ki, 0, 0, outLimit, intLimit, ts)
//	u := reg.Evaluate(setpoint, measurement) // |u| <= outLimit
//
// The derivative term acts on the measurement, so setpoint steps never kick it.
package control
