package fft

import (
	"math"
	"math/cmplx"
	"strings"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// Normalization decides how transforms are scaled.
type Normalization int

const (
	// Orthonormal scales both directions by 1/sqrt(N), so that the forward
	// and inverse transforms are exact adjoints.
	Orthonormal Normalization = iota

	// Physics additionally weighs the forward transform by the volume
	// element. The inverse removes the weight, rotates the global phase so
	// that the reference sample is real and non-negative and rescales the
	// result to unit norm.
	Physics
)

func (n Normalization) String() string {
	switch n {
	case Orthonormal:
		return "orthonormal"
	case Physics:
		return "physics"
	default:
		return "unknown"
	}
}

// ParseNormalization converts a mode name into a Normalization.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(s) {
	case "orthonormal", "ortho":
		return Orthonormal, nil
	case "physics":
		return Physics, nil
	default:
		return 0, errs.Configf("normalization",
			"unknown mode %q, use orthonormal or physics", s)
	}
}

func (e *Engine) volumeElement() float64 {
	dv := 1.0
	for _, dx := range e.spacing {
		dv *= dx
	}

	return dv
}

// baseScale is the factor applied to a transform over n points.
func (e *Engine) baseScale(n int, inverse bool) complex128 {
	s := 1 / math.Sqrt(float64(n))

	if e.norm == Physics {
		if inverse {
			s /= e.volumeElement()
		} else {
			s *= e.volumeElement()
		}
	}

	return complex(s, 0)
}

func scale(data []complex128, s complex128) {
	if s == 1 {
		return
	}

	for i := range data {
		data[i] *= s
	}
}

// alignPhase rotates the array so that the reference sample is real and
// non-negative, and scales it to unit norm.
func (e *Engine) alignPhase(a field.Array, batchBytes uint64) error {
	var refRegion field.Region
	for i := range refRegion.Start {
		refRegion.Start[i] = e.reference[i]
		refRegion.End[i] = e.reference[i] + 1
	}

	ref, err := a.ReadRegion(refRegion)
	if err != nil {
		return err
	}

	sumSq := 0.0
	it := a.IterBatches(batchBytes)
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		n := field.Norm(b.Data)
		sumSq += n * n
	}

	if err := it.Err(); err != nil {
		return err
	}

	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil
	}

	factor := complex(1/norm, 0)
	if abs := cmplx.Abs(ref[0]); abs > 0 {
		factor *= cmplx.Conj(ref[0]) / complex(abs, 0)
	}

	return scaleArray(a, factor, batchBytes)
}

func scaleArray(a field.Array, s complex128, batchBytes uint64) error {
	if d, ok := a.(*field.Dense); ok {
		scale(d.Data(), s)
		return nil
	}

	it := a.IterBatches(batchBytes)
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		scale(b.Data, s)

		if err := a.WriteRegion(b.Region, b.Data); err != nil {
			return err
		}
	}

	if err := it.Err(); err != nil {
		return err
	}

	return a.Flush()
}
