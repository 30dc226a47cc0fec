// Package foc is the digital controller of the drive. Once per control
// period [Controller.Tick] samples the currents and the angle, optionally
// runs the flux estimator and the speed observer, and evaluates the
// cascaded speed and current loops into an alpha-beta voltage command.
//
// Mode switches are typed string enums parsed once from configuration.
package foc
