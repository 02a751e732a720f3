package tiling

import (
	"sync"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// A Merger blends solved tiles into a full-domain field. Every point becomes
// the weighted mean of the tile values that cover it.
type Merger struct {
	domain field.Shape

	lock   sync.Mutex
	sum    []complex128
	weight []float64
	tiles  int
}

// NewMerger creates a merger for the given domain.
func NewMerger(domain field.Shape) *Merger {
	return &Merger{
		domain: domain,
		sum:    make([]complex128, domain.Size()),
		weight: make([]float64, domain.Size()),
	}
}

// Domain returns the shape of the merged field.
func (m *Merger) Domain() field.Shape {
	return m.domain
}

// Add accumulates the values of a solved tile. It is safe to call Add from
// multiple goroutines.
func (m *Merger) Add(t Tile, values []complex128) error {
	const last = field.Rank - 1

	if len(values) != t.Size() {
		return errs.Configf("tile values",
			"%s has %d elements, got %d values", t, t.Size(), len(values))
	}

	if !t.Region().Within(m.domain) {
		return errs.Configf("tile", "%s is outside domain %v", t, m.domain)
	}

	factors := axisFactors(t)

	m.lock.Lock()
	defer m.lock.Unlock()

	forEachRow(t, m.domain, func(c [field.Rank]int, localOff, domainOff int) {
		w := 1.0
		for a := 0; a < last; a++ {
			w *= factors[a][c[a]]
		}

		for k, f := range factors[last] {
			wk := w * f
			m.sum[domainOff+k] += complex(wk, 0) * values[localOff+k]
			m.weight[domainOff+k] += wk
		}
	})

	m.tiles++

	return nil
}

// NumTiles returns how many tiles were added since the last reset.
func (m *Merger) NumTiles() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.tiles
}

// Result divides the accumulated values by the accumulated weights. Points no
// tile covered are 0.
func (m *Merger) Result() *field.Dense {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := field.NewDense(m.domain)
	data := out.Data()

	for i, w := range m.weight {
		if w > 0 {
			data[i] = m.sum[i] / complex(w, 0)
		}
	}

	return out
}

// Covered tells if every point of the domain received a positive weight.
func (m *Merger) Covered() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, w := range m.weight {
		if w <= 0 {
			return false
		}
	}

	return true
}

// Reset clears the accumulators.
func (m *Merger) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()

	clear(m.sum)
	clear(m.weight)
	m.tiles = 0
}
