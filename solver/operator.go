package solver

import (
	"math"
	"math/cmplx"

	"github.com/sarchlab/envelope/field"
)

// Offsets returns the non-zero index offsets whose Euclidean length is at
// most cutoff.
func Offsets(cutoff float64) [][field.Rank]int {
	r := int(math.Floor(cutoff))
	limit := cutoff*cutoff + 1e-12

	var out [][field.Rank]int
	var d [field.Rank]int

	var walk func(axis, sumSq int)
	walk = func(axis, sumSq int) {
		if float64(sumSq) > limit {
			return
		}

		if axis == field.Rank {
			if sumSq > 0 {
				out = append(out, d)
			}
			return
		}

		for v := -r; v <= r; v++ {
			d[axis] = v
			walk(axis+1, sumSq+v*v)
		}
		d[axis] = 0
	}

	walk(0, 0)

	return out
}

// An Operator is the combined stiffness and susceptibility matrix of a tile.
// The diagonal is stored explicitly; off-diagonal entries are generated from
// the amplitudes and phases of the current field.
type Operator struct {
	n      int
	diag   []complex128
	amp    []float64
	phasor []complex128

	rowPtr []int
	cols   []int

	uniform complex128
	ampW    float64
	phaseW  float64
}

// NewOperator builds the operator for a tile with the given current values.
// Boundary tiles get twice the boundary term.
func NewOperator(
	c Coefficients,
	shape field.Shape,
	current []complex128,
	boundary bool,
) *Operator {
	n := shape.Size()
	op := &Operator{
		n:      n,
		diag:   make([]complex128, n),
		amp:    make([]float64, n),
		phasor: make([]complex128, n),
	}

	beta := c.Boundary
	if boundary {
		beta *= 2
	}

	k2 := c.K0 * c.K0
	meanKappa := 0.0

	for i, v := range current {
		a := cmplx.Abs(v)
		op.amp[i] = a
		op.phasor[i] = 1
		if a > 0 {
			op.phasor[i] = v / complex(a, 0)
		}

		kappa := c.kappa(a)
		meanKappa += kappa
		op.diag[i] = complex(kappa+beta, 0) + complex(k2, 0)*c.chi(a)
	}

	if n > 0 {
		meanKappa /= float64(n)
	}

	op.uniform = complex(c.CouplingStiffness*meanKappa, 0)
	op.ampW = k2 * c.CouplingAmplitude
	op.phaseW = k2 * c.CouplingPhase

	op.buildNeighbours(shape, Offsets(c.Cutoff))

	return op
}

func (op *Operator) buildNeighbours(shape field.Shape, offsets [][field.Rank]int) {
	strides := shape.Strides()

	op.rowPtr = make([]int, op.n+1)
	op.cols = make([]int, 0, op.n*len(offsets))

	var coord [field.Rank]int
	for i := 0; i < op.n; i++ {
		for _, d := range offsets {
			j, ok := 0, true
			for a := 0; a < field.Rank; a++ {
				c := coord[a] + d[a]
				if c < 0 || c >= shape[a] {
					ok = false
					break
				}
				j += c * strides[a]
			}

			if ok {
				op.cols = append(op.cols, j)
			}
		}

		op.rowPtr[i+1] = len(op.cols)

		for a := field.Rank - 1; a >= 0; a-- {
			coord[a]++
			if coord[a] < shape[a] {
				break
			}
			coord[a] = 0
		}
	}
}

// Size returns the number of unknowns.
func (op *Operator) Size() int {
	return op.n
}

// Diag returns the diagonal entry of row i.
func (op *Operator) Diag(i int) complex128 {
	return op.diag[i]
}

// offDiag returns the entry of row i, column j != i.
func (op *Operator) offDiag(i, j int) complex128 {
	return op.uniform +
		complex(op.ampW*op.amp[i]*op.amp[j], 0) +
		complex(op.phaseW, 0)*op.phasor[i]*cmplx.Conj(op.phasor[j])
}

// Apply computes y = L x.
func (op *Operator) Apply(y, x []complex128) {
	for i := 0; i < op.n; i++ {
		sum := op.diag[i] * x[i]
		for _, j := range op.cols[op.rowPtr[i]:op.rowPtr[i+1]] {
			sum += op.offDiag(i, j) * x[j]
		}
		y[i] = sum
	}
}

// RowDot returns the off-diagonal part of row i applied to x.
func (op *Operator) RowDot(i int, x []complex128) complex128 {
	sum := complex128(0)
	for _, j := range op.cols[op.rowPtr[i]:op.rowPtr[i+1]] {
		sum += op.offDiag(i, j) * x[j]
	}

	return sum
}

// Residual returns ||b - L x|| / ||b||, or ||b - L x|| when b is zero.
func (op *Operator) Residual(x, b []complex128) float64 {
	r := make([]complex128, op.n)
	op.Apply(r, x)

	for i := range r {
		r[i] = b[i] - r[i]
	}

	res := field.Norm(r)
	if nb := field.Norm(b); nb > 0 {
		res /= nb
	}

	return res
}

// Impedance returns (L a)_i / a_i for every element, or the diagonal entry
// where a_i is zero.
func (op *Operator) Impedance(a []complex128) []complex128 {
	la := make([]complex128, op.n)
	op.Apply(la, a)

	for i := range la {
		if a[i] == 0 {
			la[i] = op.diag[i]
			continue
		}

		la[i] /= a[i]
	}

	return la
}
