package main

import (
	"math"
	"math/cmplx"

	"github.com/sarchlab/envelope/field"
)

// gaussianSource builds a source that is a Gaussian bump in space, repeated
// over the phase axes and carried by one temporal oscillation. Sigma is
// relative to the extent of each spatial axis.
func gaussianSource(
	domain field.Shape,
	amplitude, sigma float64,
) (*field.Dense, error) {
	spatialDims := [3]int{domain[0], domain[1], domain[2]}
	spatial := make([]complex128, domain[0]*domain[1]*domain[2])

	i := 0
	for x := 0; x < domain[0]; x++ {
		for y := 0; y < domain[1]; y++ {
			for z := 0; z < domain[2]; z++ {
				r2 := sq(centered(x, domain[0])) +
					sq(centered(y, domain[1])) +
					sq(centered(z, domain[2]))
				spatial[i] = complex(amplitude*math.Exp(-r2/(2*sigma*sigma)), 0)
				i++
			}
		}
	}

	profiles := field.UnitProfiles(
		[3]int{domain[3], domain[4], domain[5]}, domain[6])

	nt := domain[6]
	for t := range profiles[3] {
		profiles[3][t] = cmplx.Exp(complex(0, 2*math.Pi*float64(t)/float64(nt)))
	}

	return field.OuterProduct(spatialDims, spatial, profiles)
}

func centered(i, n int) float64 {
	return (float64(i) - float64(n-1)/2) / float64(n)
}

func sq(v float64) float64 {
	return v * v
}
