// Package field defines the 7-dimensional complex field the envelope solver
// works on, either resident in memory or swapped to disk.
//
// The seven axes are grouped as three spatial axes, three periodic phase axes
// and one temporal axis. Arrays are stored in row-major order, so the temporal
// axis is the fastest varying one.
package field

import (
	"fmt"

	"github.com/sarchlab/envelope/errs"
)

// Rank is the number of axes of every field.
const Rank = 7

// ElementSize is the number of bytes of one complex128 element.
const ElementSize = 16

// AxisGroup classifies an axis.
type AxisGroup int

// The axis groups of a domain.
const (
	Spatial AxisGroup = iota
	Phase
	Temporal
)

func (g AxisGroup) String() string {
	switch g {
	case Spatial:
		return "spatial"
	case Phase:
		return "phase"
	case Temporal:
		return "temporal"
	default:
		return fmt.Sprintf("AxisGroup(%d)", int(g))
	}
}

// GroupOf returns the group that an axis belongs to.
func GroupOf(axis int) AxisGroup {
	switch {
	case axis < 3:
		return Spatial
	case axis < 6:
		return Phase
	default:
		return Temporal
	}
}

// SpatialAxes lists the indices of the spatial axes.
var SpatialAxes = []int{0, 1, 2}

// AllAxes lists every axis index.
var AllAxes = []int{0, 1, 2, 3, 4, 5, 6}

// Shape is the extent of each of the seven axes.
type Shape [Rank]int

// NewShape creates a Shape from exactly seven positive extents.
func NewShape(dims ...int) (Shape, error) {
	var s Shape

	if len(dims) != Rank {
		return s, errs.Configf("shape",
			"expected %d dimensions, got %d", Rank, len(dims))
	}

	copy(s[:], dims)

	if err := s.Validate(); err != nil {
		return Shape{}, err
	}

	return s, nil
}

// MustShape is NewShape that panics on invalid input. It is meant for tests
// and constants.
func MustShape(dims ...int) Shape {
	s, err := NewShape(dims...)
	if err != nil {
		panic(err)
	}

	return s
}

// Uniform returns a shape with the same extent on every axis.
func Uniform(n int) Shape {
	var s Shape
	for i := range s {
		s[i] = n
	}

	return s
}

// Validate checks that every extent is positive.
func (s Shape) Validate() error {
	for i, d := range s {
		if d <= 0 {
			return errs.Configf("shape",
				"axis %d (%s) has non-positive extent %d", i, GroupOf(i), d)
		}
	}

	return nil
}

// Size returns the number of elements.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}

	return n
}

// Bytes returns the memory footprint of a complex128 array of this shape.
func (s Shape) Bytes() uint64 {
	return uint64(s.Size()) * ElementSize
}

// Strides returns the row-major strides in elements.
func (s Shape) Strides() [Rank]int {
	var strides [Rank]int

	stride := 1
	for i := Rank - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= s[i]
	}

	return strides
}

// Index converts a coordinate to a linear offset.
func (s Shape) Index(coord [Rank]int) int {
	idx := 0
	for i := 0; i < Rank; i++ {
		idx = idx*s[i] + coord[i]
	}

	return idx
}

// Coord converts a linear offset to a coordinate.
func (s Shape) Coord(idx int) [Rank]int {
	var c [Rank]int
	for i := Rank - 1; i >= 0; i-- {
		c[i] = idx % s[i]
		idx /= s[i]
	}

	return c
}

// Slice returns the extents as a slice, mostly for error reporting.
func (s Shape) Slice() []int {
	out := make([]int, Rank)
	copy(out, s[:])

	return out
}

// Full returns the region that spans the whole shape.
func (s Shape) Full() Region {
	return Region{End: s}
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", [Rank]int(s))
}
