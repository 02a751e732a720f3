package solver

import (
	"math"
	"math/cmplx"

	"github.com/sarchlab/envelope/field"
)

// relax runs damped Gauss-Seidel sweeps on L x = b starting from x0. Rows
// whose diagonal is zero keep their value. It stops after maxSweeps sweeps or
// when the relative change of a sweep drops below tol, and returns the number
// of sweeps done.
func relax(
	op *Operator,
	b, x0 []complex128,
	omega float64,
	maxSweeps int,
	tol float64,
) ([]complex128, int) {
	x := append([]complex128(nil), x0...)
	w := complex(omega, 0)

	sweeps := 0
	for sweeps < maxSweeps {
		sweeps++

		changeSq := 0.0
		for i := range x {
			d := op.Diag(i)
			if d == 0 {
				continue
			}

			target := (b[i] - op.RowDot(i, x)) / d
			next := (1-w)*x[i] + w*target

			delta := cmplx.Abs(next - x[i])
			changeSq += delta * delta
			x[i] = next
		}

		change := math.Sqrt(changeSq)
		if norm := field.Norm(x); norm > 0 {
			change /= norm
		}

		if change < tol {
			break
		}
	}

	return x, sweeps
}
