package tiling

import "github.com/sarchlab/envelope/field"

const overlapWeight = 0.5

// axisFactors returns, for every axis, the weight of each local index. Points
// shared with a neighbouring tile get half weight; factors of different axes
// multiply.
func axisFactors(t Tile) [field.Rank][]float64 {
	var f [field.Rank][]float64

	for a := 0; a < field.Rank; a++ {
		n := t.Shape[a]
		f[a] = make([]float64, n)

		for k := 0; k < n; k++ {
			f[a][k] = 1
			if k < t.OverlapLow[a] || k >= n-t.OverlapHigh[a] {
				f[a][k] = overlapWeight
			}
		}
	}

	return f
}

// WeightMask returns the blending weight of every element of the tile, in
// row-major tile-local order.
func WeightMask(t Tile) []float64 {
	const last = field.Rank - 1

	factors := axisFactors(t)
	mask := make([]float64, t.Size())

	forEachRow(t, t.Shape, func(c [field.Rank]int, localOff, _ int) {
		w := 1.0
		for a := 0; a < last; a++ {
			w *= factors[a][c[a]]
		}

		for k, f := range factors[last] {
			mask[localOff+k] = w * f
		}
	})

	return mask
}
