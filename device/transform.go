package device

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// transformAxes applies an unnormalized multi-dimensional DFT in place, one
// axis at a time. The inverse transform is computed as conj(F(conj(x))), so
// both directions share the same forward plan.
func transformAxes(
	data []complex128,
	shape field.Shape,
	axes []int,
	inverse bool,
) error {
	if len(data) != shape.Size() {
		return errs.Configf("buffer",
			"holds %d elements, shape %v needs %d", len(data), shape, shape.Size())
	}

	strides := shape.Strides()
	plans := make(map[int]*fourier.CmplxFFT)

	for _, axis := range axes {
		if axis < 0 || axis >= field.Rank {
			return errs.Configf("axes", "axis %d out of range", axis)
		}

		n := shape[axis]
		if n == 1 {
			continue
		}

		plan, ok := plans[n]
		if !ok {
			plan = fourier.NewCmplxFFT(n)
			plans[n] = plan
		}

		transformAxis(data, n, strides[axis], plan, inverse)
	}

	return nil
}

func transformAxis(
	data []complex128,
	n, stride int,
	plan *fourier.CmplxFFT,
	inverse bool,
) {
	line := make([]complex128, n)
	coeff := make([]complex128, n)
	outer := len(data) / (n * stride)

	for o := 0; o < outer; o++ {
		for in := 0; in < stride; in++ {
			base := o*n*stride + in

			for k := 0; k < n; k++ {
				v := data[base+k*stride]
				if inverse {
					v = complex(real(v), -imag(v))
				}
				line[k] = v
			}

			plan.Coefficients(coeff, line)

			for k := 0; k < n; k++ {
				v := coeff[k]
				if inverse {
					v = complex(real(v), -imag(v))
				}
				data[base+k*stride] = v
			}
		}
	}
}

func bufferMustBeOwned(owner string, buf *Buffer) error {
	if buf == nil {
		return fmt.Errorf("nil buffer")
	}

	if buf.owner != owner {
		return fmt.Errorf("buffer %d belongs to %s, not %s",
			buf.id, buf.owner, owner)
	}

	return nil
}
