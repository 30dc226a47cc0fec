// Package inverter models the two-level voltage source inverter between the
// controller and the machine.
//
//   - [SVM]: space-vector modulation of an alpha-beta command into duties
//   - [Gate]: carrier, compare registers, dead time and terminal potentials
//
// The gate is ticked once per plant step. Duties latch at the carrier valley,
// optionally also at the peak.
package inverter
