package trace

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes one recorded channel.
type Summary struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	RMS    float64
}

// Stats summarises values. An empty slice yields the zero Summary.
func Stats(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	var s Summary
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	s.RMS = floats.Norm(values, 2) / math.Sqrt(float64(len(values)))
	return s
}

// Window returns the values recorded at or after t.
func (b *Buffer) Window(values []float64, from float64) []float64 {
	for i, t := range b.Time {
		if t >= from {
			return values[i:]
		}
	}
	return nil
}
