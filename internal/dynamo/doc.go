// Package dynamo provides the numeric primitives shared by the motor drive simulator.
//
//   - [State]: vector representing an ODE state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: fixed-step numerical integrator
//   - Park/Clarke transforms and angle wrapping helpers
//   - [ConfigurationError] and [DivergenceError], the two fatal run errors
//
// Angles returned by [WrapPi] and [AngleDiff] always lie in (-π, π].
package dynamo
