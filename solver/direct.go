package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errSingular = errors.New("operator is singular")

// solveDirect solves L x = b with a dense LU factorization of the realified
// system [Re L, -Im L; Im L, Re L] [Re x; Im x] = [Re b; Im b].
func solveDirect(op *Operator, b []complex128) ([]complex128, error) {
	n := op.Size()
	m := mat.NewDense(2*n, 2*n, nil)

	set := func(i, j int, v complex128) {
		m.Set(i, j, real(v))
		m.Set(i, j+n, -imag(v))
		m.Set(i+n, j, imag(v))
		m.Set(i+n, j+n, real(v))
	}

	for i := 0; i < n; i++ {
		set(i, i, op.diag[i])

		for _, j := range op.cols[op.rowPtr[i]:op.rowPtr[i+1]] {
			set(i, j, op.offDiag(i, j))
		}
	}

	rhs := mat.NewVecDense(2*n, nil)
	for i, v := range b {
		rhs.SetVec(i, real(v))
		rhs.SetVec(i+n, imag(v))
	}

	var lu mat.LU
	lu.Factorize(m)

	if logDet, _ := lu.LogDet(); math.IsInf(logDet, -1) {
		return nil, errSingular
	}

	var sol mat.VecDense
	if err := lu.SolveVecTo(&sol, false, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errSingular
		}
	}

	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(sol.AtVec(i), sol.AtVec(i+n))
	}

	return x, nil
}
