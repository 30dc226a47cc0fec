// Package observer estimates rotor position and speed from a wrapped angle
// measurement with an integral-chain observer of order 2 to 4.
//
// Order 2 tracks angle and speed. Order 3 adds a constant disturbance
// torque, order 4 its derivative. Gains come from pole placement at a
// single bandwidth unless given explicitly:
//
//	obs, err := observer.New(observer.Params{Order: observer.Order3, Bandwidth: 100, ...})
//	obs.Update(thetaMeas, tem)
//	speed := obs.Omega()
package observer
