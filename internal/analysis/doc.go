// Package analysis provides frequency-domain tools for recorded traces.
//
//   - [FFT]: gonum FFT with zero-padding to a power of two
//   - [PowerSpectrum]: one-sided magnitude spectrum
//   - [NewSpectrum]: mean-removed spectrum with a frequency axis
//   - [DominantFrequency]: strongest non-DC component
//
// A speed trace recorded during a sweep reveals the excited frequency:
//
//	rpm, _ := buf.Column(trace.PlantSpeedRPM)
//	hz := analysis.DominantFrequency(rpm, dt)
package analysis
