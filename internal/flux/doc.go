// Package flux implements a voltage-model flux estimator whose DC offset
// compensation is driven by how long the rotor flux is held at the
// saturation limit on the positive and negative side.
//
// Each controller tick the estimator integrates the back-EMF with RK4,
// clamps the rotor flux to the commanded amplitude, and feeds the
// difference of the two saturation timers into the offset states. A
// debounced zero-crossing detector per axis and direction marks
// half-cycles; at each one the alternative offset terms are refreshed for
// inspection.
package flux
