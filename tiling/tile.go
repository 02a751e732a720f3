// Package tiling splits a 7-dimensional domain into overlapping tiles that fit
// the memory budget, and blends the solved tiles back into one field.
package tiling

import (
	"fmt"

	"github.com/sarchlab/envelope/field"
)

// A Tile is a box of the domain that is solved as one local system.
type Tile struct {
	ID    int
	Start [field.Rank]int
	End   [field.Rank]int
	Shape field.Shape

	// OverlapLow and OverlapHigh are the number of points shared with the
	// previous and the next tile along each axis.
	OverlapLow  [field.Rank]int
	OverlapHigh [field.Rank]int

	MemoryEstimate uint64
}

// Region returns the box covered by the tile.
func (t Tile) Region() field.Region {
	return field.Region{Start: t.Start, End: t.End}
}

// Size returns the number of elements in the tile.
func (t Tile) Size() int {
	return t.Shape.Size()
}

// TouchesBoundary tells if any face of the tile lies on the domain boundary.
// Axes of extent 1 have no interior and do not count.
func (t Tile) TouchesBoundary(domain field.Shape) bool {
	for i := 0; i < field.Rank; i++ {
		if domain[i] == 1 {
			continue
		}

		if t.Start[i] == 0 || t.End[i] == domain[i] {
			return true
		}
	}

	return false
}

func (t Tile) String() string {
	return fmt.Sprintf("tile %d %v", t.ID, t.Region())
}

// forEachRow visits the rows of a tile along the last axis. For every row, fn
// receives the local coordinate of its first element (with the last axis at
// 0), its offset in the tile-local array and its offset in the domain.
func forEachRow(
	t Tile,
	domain field.Shape,
	fn func(coord [field.Rank]int, localOff, domainOff int),
) {
	const last = field.Rank - 1

	strides := domain.Strides()
	rowLen := t.Shape[last]

	var c [field.Rank]int
	local := 0

	for {
		global := t.Start[last]
		for a := 0; a < last; a++ {
			global += (t.Start[a] + c[a]) * strides[a]
		}

		fn(c, local, global)
		local += rowLen

		a := last - 1
		for ; a >= 0; a-- {
			c[a]++
			if c[a] < t.Shape[a] {
				break
			}
			c[a] = 0
		}

		if a < 0 {
			return
		}
	}
}
