package dynamo

import "math"

const (
	TwoPi     = 2 * math.Pi
	Sqrt3     = 1.7320508075688772
	HalfSqrt3 = 0.8660254037844386
)

// WrapPi maps an angle into (-π, π].
func WrapPi(x float64) float64 {
	r := math.Remainder(x, TwoPi)
	if r <= -math.Pi {
		r += TwoPi
	}
	return r
}

// Wrap2Pi maps an angle into [0, 2π).
func Wrap2Pi(x float64) float64 {
	r := math.Mod(x, TwoPi)
	if r < 0 {
		r += TwoPi
	}
	if r >= TwoPi {
		r = 0
	}
	return r
}

// AngleDiff is the shortest signed distance from b to a, in (-π, π].
func AngleDiff(a, b float64) float64 {
	return WrapPi(a - b)
}

// Park rotates a stationary-frame vector into the frame at angle (cos, sin).
func Park(alpha, beta, cos, sin float64) (d, q float64) {
	d = alpha*cos + beta*sin
	q = -alpha*sin + beta*cos
	return d, q
}

// InvPark rotates a synchronous-frame vector back to the stationary frame.
func InvPark(d, q, cos, sin float64) (alpha, beta float64) {
	alpha = d*cos - q*sin
	beta = d*sin + q*cos
	return alpha, beta
}

// InvClarke splits an amplitude-invariant alpha-beta vector into phase quantities.
func InvClarke(alpha, beta float64) (a, b, c float64) {
	a = alpha
	b = -0.5*alpha + HalfSqrt3*beta
	c = -0.5*alpha - HalfSqrt3*beta
	return a, b, c
}

// ClarkeLineToLine recovers the alpha-beta voltage from the AC and BC line voltages.
func ClarkeLineToLine(vac, vbc float64) (alpha, beta float64) {
	alpha = vac*2.0/3.0 - vbc/3.0
	beta = vbc / Sqrt3
	return alpha, beta
}
