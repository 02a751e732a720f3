// Package fft provides a 7-dimensional FFT that runs on a device backend and
// streams fields that do not fit the memory budget.
package fft

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// workFactor is how many field-sized buffers the direct path may hold at
// once.
const workFactor = 4

// Strategy selects how fields are transformed.
type Strategy int

const (
	// StrategyExact transforms the whole domain, directly when it fits and
	// streamed otherwise.
	StrategyExact Strategy = iota

	// StrategyWindowed transforms disjoint spatial windows independently. It
	// is an approximation of the global transform and is only used when
	// requested.
	StrategyWindowed
)

// Method is the path a transform actually took.
type Method int

const (
	MethodNone Method = iota
	MethodDirect
	MethodStreamed
	MethodWindowed
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodStreamed:
		return "streamed"
	case MethodWindowed:
		return "windowed"
	default:
		return "none"
	}
}

// BudgetSource decides which device allocations a transform may make. A
// *budget.Monitor is one.
type BudgetSource interface {
	UsableBytes() (uint64, error)
	Fits(requiredBytes uint64) (bool, error)
	Approve(requiredBytes uint64, shape []int) error
}

// An Engine performs forward and inverse transforms over all seven axes.
type Engine struct {
	backend device.Backend
	budget  BudgetSource
	store   *field.SwapStore
	logger  *zap.Logger

	norm       Normalization
	spacing    [field.Rank]float64
	reference  [field.Rank]int
	strategy   Strategy
	adaptive   bool
	windowEdge int

	lock sync.Mutex
	last Method
}

// Normalization returns the normalization mode of the engine.
func (e *Engine) Normalization() Normalization {
	return e.norm
}

// LastMethod returns the path taken by the most recent transform.
func (e *Engine) LastMethod() Method {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.last
}

// Forward transforms a field into the spectral domain.
func (e *Engine) Forward(ctx context.Context, a field.Array) (field.Array, error) {
	return e.transform(ctx, a, false)
}

// Inverse transforms a spectral field back.
func (e *Engine) Inverse(ctx context.Context, a field.Array) (field.Array, error) {
	return e.transform(ctx, a, true)
}

func opName(inverse bool) string {
	if inverse {
		return "fft inverse"
	}

	return "fft forward"
}

func (e *Engine) transform(
	ctx context.Context,
	a field.Array,
	inverse bool,
) (field.Array, error) {
	shape := a.Shape()
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	if err := e.referenceMustBeInside(shape); err != nil {
		return nil, err
	}

	usable, err := e.budget.UsableBytes()
	if err != nil {
		return nil, err
	}

	batchBytes := max(usable/workFactor, 1)

	fits, err := e.budget.Fits(shape.Bytes() * workFactor)
	if err != nil {
		return nil, err
	}

	var (
		out    field.Array
		method Method
	)

	switch {
	case e.strategy == StrategyWindowed:
		method = MethodWindowed
		out, err = e.windowed(ctx, a, inverse, usable)
	case !a.IsSwapped() && fits:
		method = MethodDirect
		out, err = e.direct(a, inverse)
	default:
		method = MethodStreamed
		out, err = e.streamed(ctx, a, inverse, batchBytes)
	}

	if err != nil {
		return nil, err
	}

	if e.norm == Physics && inverse {
		if err := e.alignPhase(out, batchBytes); err != nil {
			discard(out)
			return nil, err
		}
	}

	e.lock.Lock()
	e.last = method
	e.lock.Unlock()

	e.logger.Debug("transform done",
		zap.String("op", opName(inverse)),
		zap.Stringer("method", method),
		zap.Stringer("shape", shape),
		zap.Uint64("usable", usable))

	return out, nil
}

func (e *Engine) referenceMustBeInside(shape field.Shape) error {
	for i, r := range e.reference {
		if r < 0 || r >= shape[i] {
			return errs.Configf("reference",
				"sample %v is outside shape %v", e.reference, shape)
		}
	}

	return nil
}

// onDevice runs one transform of a host block on the backend and returns the
// result on the host. The budget must approve the block before it is
// allocated.
func (e *Engine) onDevice(
	data []complex128,
	shape field.Shape,
	axes []int,
	inverse bool,
) ([]complex128, error) {
	required := uint64(len(data)) * field.ElementSize
	if err := e.budget.Approve(required, shape.Slice()); err != nil {
		return nil, err
	}

	buf, err := e.backend.Allocate(data)
	if err != nil {
		return nil, allocFailure(opName(inverse), shape, err)
	}
	defer e.backend.Free(buf)

	if inverse {
		err = e.backend.Inverse(buf, shape, axes)
	} else {
		err = e.backend.Forward(buf, shape, axes)
	}

	if err != nil {
		return nil, err
	}

	return e.backend.ToHost(buf)
}

// allocFailure turns a failed allocation into a single ResourceError that
// describes the request.
func allocFailure(op string, shape field.Shape, err error) error {
	re := &errs.ResourceError{
		Op:            op,
		RequiredBytes: shape.Bytes(),
		Shape:         shape.Slice(),
		Err:           err,
	}

	if inner, ok := errs.AsResource(err); ok {
		re.AvailableBytes = inner.AvailableBytes
		re.Err = inner.Err
	}

	return re
}

func (e *Engine) newOutput(a field.Array) (field.Array, error) {
	if !a.IsSwapped() {
		return field.NewDense(a.Shape()), nil
	}

	if e.store == nil {
		return nil, errs.Configf("swap_store",
			"a swap store is required to transform swapped fields")
	}

	return e.store.NewArray(a.Shape())
}

func (e *Engine) direct(a field.Array, inverse bool) (field.Array, error) {
	d, err := field.Materialize(a)
	if err != nil {
		return nil, err
	}

	shape := d.Shape()

	host, err := e.onDevice(d.Data(), shape, field.AllAxes, inverse)
	if err != nil {
		return nil, err
	}

	scale(host, e.baseScale(shape.Size(), inverse))

	return field.FromData(shape, host)
}
