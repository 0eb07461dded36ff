package market

import (
	"math"
	"math/rand"
)

// studentT draws from a Student-t distribution with df degrees of freedom.
// Built as Z / sqrt(V/df) with V ~ chi-squared(df).
func studentT(rng *rand.Rand, df float64) float64 {
	z := rng.NormFloat64()
	v := 2 * gamma(rng, df/2)
	if v <= 0 {
		return z
	}
	return z / math.Sqrt(v/df)
}

// gamma draws from Gamma(shape, 1) using Marsaglia and Tsang.
func gamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		// Boost: Gamma(a) = Gamma(a+1) * U^(1/a)
		u := rng.Float64()
		return gamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// unitVarianceScale rescales a Student-t draw to unit variance.
func unitVarianceScale(df float64) float64 {
	if df <= 2 {
		return 1
	}
	return math.Sqrt((df - 2) / df)
}
