package solver

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/sarchlab/envelope/field"
)

var (
	errBreakdown = errors.New("krylov breakdown")
	errStalled   = errors.New("krylov solve stalled")
)

func dot(a, b []complex128) complex128 {
	sum := complex128(0)
	for i := range a {
		sum += cmplx.Conj(a[i]) * b[i]
	}

	return sum
}

// solveBiCGSTAB solves L x = b with Jacobi-preconditioned BiCGSTAB, starting
// from x0. It returns the iterate with the smallest residual, the number of
// iterations and whether the tolerance was met. A breakdown before any
// progress returns errBreakdown.
func solveBiCGSTAB(
	op *Operator,
	b, x0 []complex128,
	tol float64,
	maxIter int,
) ([]complex128, int, bool, error) {
	n := op.Size()

	inv := make([]complex128, n)
	for i := range inv {
		inv[i] = 1
		if d := op.Diag(i); d != 0 {
			inv[i] = 1 / d
		}
	}

	precondition := func(dst, src []complex128) {
		for i := range dst {
			dst[i] = inv[i] * src[i]
		}
	}

	normB := field.Norm(b)
	if normB == 0 {
		return make([]complex128, n), 0, true, nil
	}

	x := append([]complex128(nil), x0...)
	r := make([]complex128, n)
	op.Apply(r, x)
	for i := range r {
		r[i] = b[i] - r[i]
	}

	best := append([]complex128(nil), x...)
	bestRes := field.Norm(r) / normB
	if bestRes < tol {
		return best, 0, true, nil
	}

	rHat := append([]complex128(nil), r...)
	p := make([]complex128, n)
	v := make([]complex128, n)
	s := make([]complex128, n)
	t := make([]complex128, n)
	ph := make([]complex128, n)
	sh := make([]complex128, n)

	rho, alpha, omega := complex128(1), complex128(1), complex128(1)

	for iter := 1; iter <= maxIter; iter++ {
		rhoNew := dot(rHat, r)
		if rhoNew == 0 || omega == 0 {
			return breakdownResult(best, bestRes, iter, tol)
		}

		beta := (rhoNew / rho) * (alpha / omega)
		for i := range p {
			p[i] = r[i] + beta*(p[i]-omega*v[i])
		}
		rho = rhoNew

		precondition(ph, p)
		op.Apply(v, ph)

		den := dot(rHat, v)
		if den == 0 {
			return breakdownResult(best, bestRes, iter, tol)
		}
		alpha = rho / den

		for i := range s {
			s[i] = r[i] - alpha*v[i]
		}

		if res := field.Norm(s) / normB; res < tol {
			for i := range x {
				x[i] += alpha * ph[i]
			}

			return x, iter, true, nil
		}

		precondition(sh, s)
		op.Apply(t, sh)

		tt := dot(t, t)
		if tt == 0 {
			return breakdownResult(best, bestRes, iter, tol)
		}
		omega = dot(t, s) / tt

		for i := range x {
			x[i] += alpha*ph[i] + omega*sh[i]
			r[i] = s[i] - omega*t[i]
		}

		res := field.Norm(r) / normB
		if math.IsNaN(res) || math.IsInf(res, 0) {
			return breakdownResult(best, bestRes, iter, tol)
		}

		if res < bestRes {
			bestRes = res
			copy(best, x)
		}

		if res < tol {
			return x, iter, true, nil
		}
	}

	return best, maxIter, false, nil
}

func breakdownResult(
	best []complex128,
	bestRes float64,
	iter int,
	tol float64,
) ([]complex128, int, bool, error) {
	if bestRes < tol {
		return best, iter, true, nil
	}

	return nil, iter, false, errBreakdown
}
