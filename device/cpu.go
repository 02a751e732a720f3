package device

import (
	"runtime/debug"
	"sync"

	"github.com/shirou/gopsutil/mem"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// CPUBackend runs every operation on the host. Its memory figures come from
// the operating system.
type CPUBackend struct {
	lock   sync.Mutex
	nextID uint64
	live   map[uint64]uint64
}

// NewCPUBackend creates a CPUBackend.
func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		live: make(map[uint64]uint64),
	}
}

// Name returns "cpu".
func (b *CPUBackend) Name() string {
	return "cpu"
}

// Kind returns KindCPU.
func (b *CPUBackend) Kind() Kind {
	return KindCPU
}

// QueryMemory reports the available and total host memory.
func (b *CPUBackend) QueryMemory() (MemoryInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemoryInfo{}, &errs.ResourceError{Op: "query host memory", Err: err}
	}

	return MemoryInfo{Free: vm.Available, Total: vm.Total}, nil
}

// ReleasePools asks the Go runtime to return freed memory to the system.
func (b *CPUBackend) ReleasePools() error {
	debug.FreeOSMemory()
	return nil
}

// Allocate copies host data into a new buffer.
func (b *CPUBackend) Allocate(host []complex128) (*Buffer, error) {
	data := make([]complex128, len(host))
	copy(data, host)

	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	buf := &Buffer{id: b.nextID, owner: b.Name(), data: data}
	b.live[buf.id] = buf.Bytes()

	return buf, nil
}

// ToHost copies the buffer content out.
func (b *CPUBackend) ToHost(buf *Buffer) ([]complex128, error) {
	if err := bufferMustBeOwned(b.Name(), buf); err != nil {
		return nil, err
	}

	out := make([]complex128, len(buf.data))
	copy(out, buf.data)

	return out, nil
}

// Free forgets a buffer.
func (b *CPUBackend) Free(buf *Buffer) {
	if buf == nil {
		return
	}

	b.lock.Lock()
	delete(b.live, buf.id)
	b.lock.Unlock()

	buf.data = nil
}

// LiveBytes returns the bytes held by buffers that were not freed.
func (b *CPUBackend) LiveBytes() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()

	total := uint64(0)
	for _, n := range b.live {
		total += n
	}

	return total
}

// Forward applies an unnormalized forward DFT.
func (b *CPUBackend) Forward(buf *Buffer, shape field.Shape, axes []int) error {
	if err := bufferMustBeOwned(b.Name(), buf); err != nil {
		return err
	}

	return transformAxes(buf.data, shape, axes, false)
}

// Inverse applies an unnormalized inverse DFT.
func (b *CPUBackend) Inverse(buf *Buffer, shape field.Shape, axes []int) error {
	if err := bufferMustBeOwned(b.Name(), buf); err != nil {
		return err
	}

	return transformAxes(buf.data, shape, axes, true)
}

// Synchronize returns immediately, as host operations are synchronous.
func (b *CPUBackend) Synchronize() error {
	return nil
}
