// Package trace defines the closed, versioned set of signals a run can
// record and the in-memory buffer that holds them.
package trace
