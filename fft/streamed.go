package fft

import (
	"context"

	"github.com/sarchlab/envelope/field"
)

var innerAxes = []int{1, 2, 3, 4, 5, 6}

// streamed computes the exact transform in two passes so that no block larger
// than batchBytes goes to the device. The first pass transforms first-axis
// slabs along the other six axes. The second pass transforms pencils that
// span the whole first axis.
func (e *Engine) streamed(
	ctx context.Context,
	a field.Array,
	inverse bool,
	batchBytes uint64,
) (field.Array, error) {
	out, err := e.newOutput(a)
	if err != nil {
		return nil, err
	}

	if err := e.streamInto(ctx, a, out, inverse, batchBytes); err != nil {
		discard(out)
		return nil, err
	}

	return out, nil
}

func (e *Engine) streamInto(
	ctx context.Context,
	a, out field.Array,
	inverse bool,
	batchBytes uint64,
) error {
	shape := a.Shape()

	it := a.IterBatches(batchBytes)
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := e.onDevice(b.Data, b.Region.Shape(), innerAxes, inverse)
		if err != nil {
			return err
		}

		if err := out.WriteRegion(b.Region, data); err != nil {
			return err
		}
	}

	if err := it.Err(); err != nil {
		return err
	}

	s := e.baseScale(shape.Size(), inverse)

	for _, r := range pencils(shape, batchBytes) {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := out.ReadRegion(r)
		if err != nil {
			return err
		}

		data, err = e.onDevice(data, r.Shape(), []int{0}, inverse)
		if err != nil {
			return err
		}

		scale(data, s)

		if err := out.WriteRegion(r, data); err != nil {
			return err
		}
	}

	return out.Flush()
}

// pencils splits a domain into disjoint regions that span the whole first
// axis and hold at most maxBytes each, unless a single first-axis line is
// already larger.
func pencils(shape field.Shape, maxBytes uint64) []field.Region {
	maxElems := max(int(maxBytes/field.ElementSize), 1)

	// Split along axis j: axes before j are taken one index at a time, axes
	// after j are taken whole.
	j := field.Rank - 1
	rest := shape[0]
	for k := 1; k < field.Rank; k++ {
		r := shape[0]
		for i := k + 1; i < field.Rank; i++ {
			r *= shape[i]
		}

		if r <= maxElems {
			j, rest = k, r
			break
		}
	}

	chunk := min(max(maxElems/rest, 1), shape[j])

	var regions []field.Region
	var idx [field.Rank]int

	for {
		r := shape.Full()
		for i := 1; i < j; i++ {
			r.Start[i] = idx[i]
			r.End[i] = idx[i] + 1
		}
		r.Start[j] = idx[j]
		r.End[j] = min(idx[j]+chunk, shape[j])
		regions = append(regions, r)

		k := j
		for ; k >= 1; k-- {
			step := 1
			if k == j {
				step = chunk
			}

			idx[k] += step
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}

		if k < 1 {
			return regions
		}
	}
}
