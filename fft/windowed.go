package fft

import (
	"context"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// windows splits the spatial axes into disjoint boxes of edge at most edge.
// Phase and temporal axes are never split.
func windows(shape field.Shape, edge int) []field.Region {
	var regions []field.Region
	var idx [3]int

	for {
		r := shape.Full()
		for i := 0; i < 3; i++ {
			r.Start[i] = idx[i]
			r.End[i] = min(idx[i]+edge, shape[i])
		}
		regions = append(regions, r)

		k := 2
		for ; k >= 0; k-- {
			idx[k] += edge
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}

		if k < 0 {
			return regions
		}
	}
}

// windowEdgeFor returns the largest spatial edge, halving from the largest
// spatial extent, whose windows fit the usable memory.
func windowEdgeFor(shape field.Shape, usable uint64) int {
	edge := max(shape[0], shape[1], shape[2])

	for edge > 1 {
		w := shape
		for i := 0; i < 3; i++ {
			w[i] = min(edge, shape[i])
		}

		if w.Bytes()*workFactor <= usable {
			break
		}

		edge /= 2
	}

	return edge
}

// windowed transforms every spatial window over all seven axes of the window.
// With adaptive windows, a window that cannot be allocated halves the edge
// and the pass restarts.
func (e *Engine) windowed(
	ctx context.Context,
	a field.Array,
	inverse bool,
	usable uint64,
) (field.Array, error) {
	edge := e.windowEdge
	if edge == 0 {
		edge = windowEdgeFor(a.Shape(), usable)
	}

	e.logger.Warn("windowed transform is an approximation of the global transform",
		zap.String("op", opName(inverse)),
		zap.Int("window_edge", edge))

	for {
		out, err := e.windowedPass(ctx, a, inverse, edge)
		if err == nil {
			return out, nil
		}

		if !e.adaptive || !errs.IsResource(err) || edge == 1 {
			return nil, err
		}

		edge /= 2
		e.logger.Info("window does not fit, halving",
			zap.Int("window_edge", edge),
			zap.Error(err))
	}
}

func (e *Engine) windowedPass(
	ctx context.Context,
	a field.Array,
	inverse bool,
	edge int,
) (field.Array, error) {
	out, err := e.newOutput(a)
	if err != nil {
		return nil, err
	}

	for _, r := range windows(a.Shape(), edge) {
		if err := ctx.Err(); err != nil {
			discard(out)
			return nil, err
		}

		data, err := a.ReadRegion(r)
		if err != nil {
			discard(out)
			return nil, err
		}

		ws := r.Shape()

		data, err = e.onDevice(data, ws, field.AllAxes, inverse)
		if err != nil {
			discard(out)
			return nil, err
		}

		scale(data, e.baseScale(ws.Size(), inverse))

		if err := out.WriteRegion(r, data); err != nil {
			discard(out)
			return nil, err
		}
	}

	if err := out.Flush(); err != nil {
		discard(out)
		return nil, err
	}

	return out, nil
}

func discard(a field.Array) {
	_ = field.Release(a)
}
