package device

import (
	"fmt"
	"sync"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// SimulatedGPU models an accelerator with a fixed amount of device memory and
// a caching allocator. Freed buffers go to a pool and keep occupying device
// memory until ReleasePools is called or an allocation needs the room.
type SimulatedGPU struct {
	name     string
	capacity uint64

	lock        sync.Mutex
	nextID      uint64
	used        uint64
	pooledBytes uint64
	peak        uint64
	pool        map[int][][]complex128
	live        map[uint64]uint64
	numAlloc    uint64
	numSync     uint64
}

// NewSimulatedGPU creates a simulated GPU with capacity bytes of memory.
func NewSimulatedGPU(name string, capacity uint64) *SimulatedGPU {
	if capacity == 0 {
		panic("simulated GPU capacity must be positive")
	}

	return &SimulatedGPU{
		name:     name,
		capacity: capacity,
		pool:     make(map[int][][]complex128),
		live:     make(map[uint64]uint64),
	}
}

// Name returns the name of the device.
func (g *SimulatedGPU) Name() string {
	return g.name
}

// Kind returns KindGPU.
func (g *SimulatedGPU) Kind() Kind {
	return KindGPU
}

// QueryMemory reports the memory not held by live or pooled buffers.
func (g *SimulatedGPU) QueryMemory() (MemoryInfo, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	return MemoryInfo{
		Free:  g.capacity - g.used - g.pooledBytes,
		Total: g.capacity,
	}, nil
}

// ReleasePools drops every pooled buffer.
func (g *SimulatedGPU) ReleasePools() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.releasePoolsLocked()

	return nil
}

func (g *SimulatedGPU) releasePoolsLocked() {
	g.pool = make(map[int][][]complex128)
	g.pooledBytes = 0
}

// Allocate transfers host data into device memory, reusing a pooled buffer of
// the same length when possible.
func (g *SimulatedGPU) Allocate(host []complex128) (*Buffer, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	need := uint64(len(host)) * field.ElementSize

	data := g.takeFromPoolLocked(len(host))
	if data == nil {
		if g.used+g.pooledBytes+need > g.capacity {
			g.releasePoolsLocked()
		}

		if g.used+need > g.capacity {
			return nil, &errs.ResourceError{
				Op:             "allocate on " + g.name,
				RequiredBytes:  need,
				AvailableBytes: g.capacity - g.used,
			}
		}

		data = make([]complex128, len(host))
	}

	copy(data, host)

	g.nextID++
	g.numAlloc++
	g.used += need
	if g.used > g.peak {
		g.peak = g.used
	}

	buf := &Buffer{id: g.nextID, owner: g.name, data: data}
	g.live[buf.id] = need

	return buf, nil
}

func (g *SimulatedGPU) takeFromPoolLocked(n int) []complex128 {
	list := g.pool[n]
	if len(list) == 0 {
		return nil
	}

	data := list[len(list)-1]
	g.pool[n] = list[:len(list)-1]
	g.pooledBytes -= uint64(n) * field.ElementSize

	return data
}

// ToHost copies a buffer back to the host.
func (g *SimulatedGPU) ToHost(buf *Buffer) ([]complex128, error) {
	if err := bufferMustBeOwned(g.name, buf); err != nil {
		return nil, err
	}

	out := make([]complex128, len(buf.data))
	copy(out, buf.data)

	return out, nil
}

// Free moves a buffer into the pool.
func (g *SimulatedGPU) Free(buf *Buffer) {
	if buf == nil || buf.owner != g.name {
		return
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	bytes, ok := g.live[buf.id]
	if !ok {
		return
	}

	delete(g.live, buf.id)
	g.used -= bytes
	g.pool[len(buf.data)] = append(g.pool[len(buf.data)], buf.data)
	g.pooledBytes += bytes
	buf.data = nil
}

// Forward applies an unnormalized forward DFT.
func (g *SimulatedGPU) Forward(buf *Buffer, shape field.Shape, axes []int) error {
	if err := bufferMustBeOwned(g.name, buf); err != nil {
		return err
	}

	return transformAxes(buf.data, shape, axes, false)
}

// Inverse applies an unnormalized inverse DFT.
func (g *SimulatedGPU) Inverse(buf *Buffer, shape field.Shape, axes []int) error {
	if err := bufferMustBeOwned(g.name, buf); err != nil {
		return err
	}

	return transformAxes(buf.data, shape, axes, true)
}

// Synchronize counts the barrier; the simulated device executes eagerly.
func (g *SimulatedGPU) Synchronize() error {
	g.lock.Lock()
	g.numSync++
	g.lock.Unlock()

	return nil
}

// Stats reports allocator counters.
func (g *SimulatedGPU) Stats() SimulatedGPUStats {
	g.lock.Lock()
	defer g.lock.Unlock()

	return SimulatedGPUStats{
		Used:        g.used,
		Pooled:      g.pooledBytes,
		Peak:        g.peak,
		Allocations: g.numAlloc,
		Syncs:       g.numSync,
	}
}

// SimulatedGPUStats are the allocator counters of a SimulatedGPU.
type SimulatedGPUStats struct {
	Used        uint64
	Pooled      uint64
	Peak        uint64
	Allocations uint64
	Syncs       uint64
}

func (s SimulatedGPUStats) String() string {
	return fmt.Sprintf("used=%d pooled=%d peak=%d allocs=%d syncs=%d",
		s.Used, s.Pooled, s.Peak, s.Allocations, s.Syncs)
}
