package tiling

import (
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// UniformOverlap returns the same overlap for every axis.
func UniformOverlap(n int) [field.Rank]int {
	var o [field.Rank]int
	for i := range o {
		o[i] = n
	}

	return o
}

// An Iterator walks the tiles of a domain in row-major tile order. Tiles are
// produced lazily and the walk can be restarted.
type Iterator struct {
	domain   field.Shape
	tile     field.Shape
	overlap  [field.Rank]int
	starts   [field.Rank][]int
	estimate func(field.Shape) uint64

	count int
	next  int
}

// NewIterator creates an iterator over domain with tiles of the given shape.
// Along an axis where the tile is at least as large as the domain a single
// tile spans the axis. Elsewhere the overlap must be smaller than the tile.
func NewIterator(
	domain, tile field.Shape,
	overlap [field.Rank]int,
) (*Iterator, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}

	if err := tile.Validate(); err != nil {
		return nil, err
	}

	it := &Iterator{
		domain:  domain,
		overlap: overlap,
		count:   1,
	}

	for a := 0; a < field.Rank; a++ {
		starts, size, err := axisStarts(a, domain[a], tile[a], overlap[a])
		if err != nil {
			return nil, err
		}

		it.tile[a] = size
		it.starts[a] = starts
		it.count *= len(starts)
	}

	return it, nil
}

func axisStarts(axis, extent, tile, overlap int) ([]int, int, error) {
	if overlap < 0 {
		return nil, 0, errs.Configf("overlap",
			"axis %d: %d is negative", axis, overlap)
	}

	if tile >= extent {
		return []int{0}, extent, nil
	}

	if overlap >= tile {
		return nil, 0, errs.Configf("overlap",
			"axis %d: %d must be smaller than the tile size %d",
			axis, overlap, tile)
	}

	step := tile - overlap
	n := (extent - overlap + step - 1) / step

	starts := make([]int, n)
	for k := range starts {
		s := k * step
		if s+tile > extent {
			s = extent - tile
		}
		starts[k] = s
	}

	return starts, tile, nil
}

// WithEstimator makes the iterator fill MemoryEstimate on each tile.
func (it *Iterator) WithEstimator(fn func(field.Shape) uint64) *Iterator {
	it.estimate = fn
	return it
}

// Domain returns the shape of the tiled domain.
func (it *Iterator) Domain() field.Shape {
	return it.domain
}

// TileShape returns the tile shape after clamping to the domain.
func (it *Iterator) TileShape() field.Shape {
	return it.tile
}

// Count returns the total number of tiles.
func (it *Iterator) Count() int {
	return it.count
}

// Next returns the next tile. The second return value is false when the walk
// is over.
func (it *Iterator) Next() (Tile, bool) {
	if it.next >= it.count {
		return Tile{}, false
	}

	t := it.tileAt(it.next)
	it.next++

	return t, true
}

// Reset restarts the walk from the first tile.
func (it *Iterator) Reset() {
	it.next = 0
}

// All returns every tile without disturbing the current position.
func (it *Iterator) All() []Tile {
	tiles := make([]Tile, it.count)
	for i := range tiles {
		tiles[i] = it.tileAt(i)
	}

	return tiles
}

func (it *Iterator) tileAt(id int) Tile {
	t := Tile{ID: id, Shape: it.tile}

	rem := id
	for a := field.Rank - 1; a >= 0; a-- {
		starts := it.starts[a]
		k := rem % len(starts)
		rem /= len(starts)

		t.Start[a] = starts[k]
		t.End[a] = starts[k] + it.tile[a]

		if k > 0 {
			t.OverlapLow[a] = starts[k-1] + it.tile[a] - starts[k]
		}

		if k < len(starts)-1 {
			t.OverlapHigh[a] = t.End[a] - starts[k+1]
		}
	}

	if it.estimate != nil {
		t.MemoryEstimate = it.estimate(t.Shape)
	}

	return t
}
