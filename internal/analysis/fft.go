package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// FFT returns the full complex spectrum. Input whose length is not a power
// of two is zero-padded.
func FFT(data []float64) []complex128 {
	padded := pad(data)
	if len(padded) == 1 {
		return []complex128{complex(padded[0], 0)}
	}
	seq := make([]complex128, len(padded))
	for i, v := range padded {
		seq[i] = complex(v, 0)
	}
	return fourier.NewCmplxFFT(len(seq)).Coefficients(nil, seq)
}

// PowerSpectrum is the magnitude of the first half of the zero-padded
// spectrum.
func PowerSpectrum(data []float64) []float64 {
	padded := pad(data)
	n := len(padded)
	if n < 2 {
		return nil
	}
	coeff := fourier.NewFFT(n).Coefficients(nil, padded)
	ps := make([]float64, n/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeff[i])
	}
	return ps
}

func pad(data []float64) []float64 {
	n := nextPow2(len(data))
	if n == len(data) {
		return data
	}
	padded := make([]float64, n)
	copy(padded, data)
	return padded
}

// Spectrum is a one-sided magnitude spectrum of a uniformly sampled signal.
type Spectrum struct {
	Freq      []float64
	Magnitude []float64
}

// NewSpectrum removes the mean and transforms values sampled every dt seconds.
func NewSpectrum(values []float64, dt float64) Spectrum {
	if len(values) < 2 || dt <= 0 {
		return Spectrum{}
	}
	centered := make([]float64, len(values))
	copy(centered, values)
	floats.AddConst(-floats.Sum(values)/float64(len(values)), centered)

	mag := PowerSpectrum(centered)
	n := 2 * len(mag)
	freq := make([]float64, len(mag))
	for i := range freq {
		freq[i] = float64(i) / (float64(n) * dt)
	}
	return Spectrum{Freq: freq, Magnitude: mag}
}

// Dominant returns the frequency of the largest non-DC bin, or 0 for an
// empty spectrum.
func (s Spectrum) Dominant() float64 {
	if len(s.Magnitude) < 2 {
		return 0
	}
	return s.Freq[1+floats.MaxIdx(s.Magnitude[1:])]
}

// DominantFrequency is NewSpectrum(values, dt).Dominant().
func DominantFrequency(values []float64, dt float64) float64 {
	return NewSpectrum(values, dt).Dominant()
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
