package field

import (
	"fmt"
	"sync"

	"github.com/sarchlab/envelope/errs"
)

// Swapped is an array kept in a SwapStore. Recently written slabs are held in
// a small write-back cache until Flush is called or the cache fills up.
type Swapped struct {
	shape   Shape
	name    string
	store   *SwapStore
	slabLen int

	lock     sync.Mutex
	dirty    map[int][]complex128
	maxDirty int
}

// Shape returns the shape of the array.
func (s *Swapped) Shape() Shape {
	return s.shape
}

// IsSwapped returns true.
func (s *Swapped) IsSwapped() bool {
	return true
}

// Name returns the key of the array inside its store.
func (s *Swapped) Name() string {
	return s.name
}

// IterBatches streams the array in slabs along the first axis.
func (s *Swapped) IterBatches(maxBatchBytes uint64) BatchIterator {
	return newSlabIterator(s, maxBatchBytes)
}

func (s *Swapped) slabShape() Shape {
	sh := s.shape
	sh[0] = 1

	return sh
}

func (s *Swapped) slabRegion(r Region) Region {
	sr := r
	sr.Start[0] = 0
	sr.End[0] = 1

	return sr
}

func (s *Swapped) loadSlab(idx int) ([]complex128, error) {
	if data, ok := s.dirty[idx]; ok {
		return data, nil
	}

	return s.store.readSlab(s.name, idx, s.slabLen)
}

// ReadRegion copies the region out of the store.
func (s *Swapped) ReadRegion(r Region) ([]complex128, error) {
	if !r.Within(s.shape) {
		return nil, errs.Configf("region", "%v outside of domain %v", r, s.shape)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	out := make([]complex128, r.Size())
	perSlab := r.Size() / (r.End[0] - r.Start[0])
	sr := s.slabRegion(r)
	slabShape := s.slabShape()

	for idx := r.Start[0]; idx < r.End[0]; idx++ {
		slab, err := s.loadSlab(idx)
		if err != nil {
			return nil, &errs.ResourceError{
				Op:    fmt.Sprintf("read slab %d", idx),
				Shape: s.shape.Slice(),
				Err:   err,
			}
		}

		off := (idx - r.Start[0]) * perSlab
		CopyRegion(out[off:off+perSlab], slab, slabShape, sr)
	}

	return out, nil
}

// WriteRegion writes data into the region, staging touched slabs in the
// write-back cache.
func (s *Swapped) WriteRegion(r Region, data []complex128) error {
	if !r.Within(s.shape) {
		return errs.Configf("region", "%v outside of domain %v", r, s.shape)
	}

	if len(data) != r.Size() {
		return errs.Configf("data", "length %d does not match region %v",
			len(data), r)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	perSlab := r.Size() / (r.End[0] - r.Start[0])
	sr := s.slabRegion(r)
	slabShape := s.slabShape()
	fullSlab := perSlab == s.slabLen

	for idx := r.Start[0]; idx < r.End[0]; idx++ {
		off := (idx - r.Start[0]) * perSlab

		var slab []complex128
		if fullSlab {
			slab = make([]complex128, s.slabLen)
		} else {
			loaded, err := s.loadSlab(idx)
			if err != nil {
				return &errs.ResourceError{
					Op:    fmt.Sprintf("read slab %d", idx),
					Shape: s.shape.Slice(),
					Err:   err,
				}
			}
			slab = loaded
		}

		PasteRegion(slab, data[off:off+perSlab], slabShape, sr)
		s.dirty[idx] = slab

		if len(s.dirty) >= s.maxDirty {
			if err := s.flushLocked(); err != nil {
				return err
			}
		}
	}

	return nil
}

// Flush writes every staged slab to disk.
func (s *Swapped) Flush() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.flushLocked()
}

func (s *Swapped) flushLocked() error {
	if len(s.dirty) == 0 {
		return nil
	}

	if err := s.store.writeSlabs(s.name, s.dirty); err != nil {
		return &errs.ResourceError{
			Op:    "flush swapped array",
			Shape: s.shape.Slice(),
			Err:   err,
		}
	}

	s.dirty = make(map[int][]complex128)

	return nil
}

// Release discards the array from the store.
func (s *Swapped) Release() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.dirty = make(map[int][]complex128)

	return s.store.dropArray(s.name)
}

// Release drops the disk copy of a swapped array. Resident arrays are left
// alone.
func Release(a Array) error {
	if s, ok := a.(*Swapped); ok {
		return s.Release()
	}

	return nil
}
