package field

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sarchlab/envelope/errs"
)

// A Batch is one window of an array, streamed out of an array by a
// BatchIterator.
type Batch struct {
	Region Region
	Data   []complex128
}

// An Array is a 7-dimensional complex field. It may live in memory or be
// swapped to disk.
type Array interface {
	// Shape returns the domain shape of the array.
	Shape() Shape

	// IsSwapped tells if the array is backed by disk storage.
	IsSwapped() bool

	// ReadRegion returns a copy of the elements inside r in region-local
	// row-major order.
	ReadRegion(r Region) ([]complex128, error)

	// WriteRegion overwrites the elements inside r.
	WriteRegion(r Region, data []complex128) error

	// IterBatches streams the array in windows of at most maxBatchBytes
	// bytes. A window is never smaller than one slab along the first axis.
	IterBatches(maxBatchBytes uint64) BatchIterator

	// Flush persists pending writes. It is a no-op for resident arrays.
	Flush() error
}

// A BatchIterator walks an array window by window.
type BatchIterator interface {
	// Next returns the next batch. It returns false when the array is
	// exhausted or an error occurred.
	Next() (Batch, bool)

	// Err returns the first error met while iterating.
	Err() error
}

// Dense is a memory-resident array.
type Dense struct {
	shape Shape
	data  []complex128
}

// NewDense creates a zero-filled resident array.
func NewDense(shape Shape) *Dense {
	return &Dense{
		shape: shape,
		data:  make([]complex128, shape.Size()),
	}
}

// FromData wraps data as a resident array without copying.
func FromData(shape Shape, data []complex128) (*Dense, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	if len(data) != shape.Size() {
		return nil, errs.Configf("data",
			"length %d does not match shape %v (%d elements)",
			len(data), shape, shape.Size())
	}

	return &Dense{shape: shape, data: data}, nil
}

// Shape returns the shape of the array.
func (d *Dense) Shape() Shape {
	return d.shape
}

// IsSwapped returns false.
func (d *Dense) IsSwapped() bool {
	return false
}

// Data exposes the underlying row-major storage.
func (d *Dense) Data() []complex128 {
	return d.data
}

// At returns the element at a coordinate.
func (d *Dense) At(coord [Rank]int) complex128 {
	return d.data[d.shape.Index(coord)]
}

// Set writes the element at a coordinate.
func (d *Dense) Set(coord [Rank]int, v complex128) {
	d.data[d.shape.Index(coord)] = v
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	c := NewDense(d.shape)
	copy(c.data, d.data)

	return c
}

// ReadRegion copies the region out of the array.
func (d *Dense) ReadRegion(r Region) ([]complex128, error) {
	if !r.Within(d.shape) {
		return nil, errs.Configf("region", "%v outside of domain %v", r, d.shape)
	}

	out := make([]complex128, r.Size())
	CopyRegion(out, d.data, d.shape, r)

	return out, nil
}

// WriteRegion pastes data into the region.
func (d *Dense) WriteRegion(r Region, data []complex128) error {
	if !r.Within(d.shape) {
		return errs.Configf("region", "%v outside of domain %v", r, d.shape)
	}

	if len(data) != r.Size() {
		return errs.Configf("data", "length %d does not match region %v",
			len(data), r)
	}

	PasteRegion(d.data, data, d.shape, r)

	return nil
}

// IterBatches streams the array in slabs along the first axis.
func (d *Dense) IterBatches(maxBatchBytes uint64) BatchIterator {
	return newSlabIterator(d, maxBatchBytes)
}

// Flush does nothing for resident arrays.
func (d *Dense) Flush() error {
	return nil
}

type slabIterator struct {
	array    Array
	slabsPer int
	nextSlab int
	err      error
}

func newSlabIterator(a Array, maxBatchBytes uint64) *slabIterator {
	return &slabIterator{
		array:    a,
		slabsPer: SlabsPerBatch(a.Shape(), maxBatchBytes),
	}
}

// SlabsPerBatch returns how many first-axis slabs fit in maxBatchBytes. At
// least one slab is always returned.
func SlabsPerBatch(shape Shape, maxBatchBytes uint64) int {
	slabBytes := shape.Bytes() / uint64(shape[0])

	n := int(maxBatchBytes / slabBytes)
	if n < 1 {
		n = 1
	}

	if n > shape[0] {
		n = shape[0]
	}

	return n
}

func (it *slabIterator) Next() (Batch, bool) {
	shape := it.array.Shape()
	if it.err != nil || it.nextSlab >= shape[0] {
		return Batch{}, false
	}

	end := it.nextSlab + it.slabsPer
	if end > shape[0] {
		end = shape[0]
	}

	r := shape.Full()
	r.Start[0] = it.nextSlab
	r.End[0] = end

	data, err := it.array.ReadRegion(r)
	if err != nil {
		it.err = err
		return Batch{}, false
	}

	it.nextSlab = end

	return Batch{Region: r, Data: data}, true
}

func (it *slabIterator) Err() error {
	return it.err
}

// Norm returns the L2 norm of a vector.
func Norm(v []complex128) float64 {
	sum := 0.0
	for _, x := range v {
		sum += real(x)*real(x) + imag(x)*imag(x)
	}

	return math.Sqrt(sum)
}

// DiffNorm returns the L2 norm of a - b.
func DiffNorm(a, b []complex128) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += real(d)*real(d) + imag(d)*imag(d)
	}

	return math.Sqrt(sum)
}

// AllFinite tells if every element is finite.
func AllFinite(v []complex128) bool {
	for _, x := range v {
		if cmplx.IsNaN(x) || cmplx.IsInf(x) {
			return false
		}
	}

	return true
}

// Materialize reads a whole array into a resident copy.
func Materialize(a Array) (*Dense, error) {
	if d, ok := a.(*Dense); ok {
		return d, nil
	}

	shape := a.Shape()
	out := NewDense(shape)

	it := a.IterBatches(shape.Bytes())
	for {
		b, ok := it.Next()
		if !ok {
			break
		}

		PasteRegion(out.data, b.Data, shape, b.Region)
	}

	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("materializing %v array: %w", shape, err)
	}

	return out, nil
}
