// Package device defines the execution backend the numeric code runs on, and
// the policy that decides which backend a process uses.
//
// Numeric components never pick a backend themselves. A single composition
// root registers the available backends in a Registry and selects one with a
// Policy; the chosen Backend is then handed to every component constructor.
package device

import (
	"fmt"
	"strings"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// Kind tells what kind of hardware a backend drives.
type Kind int

// The kinds of backends.
const (
	KindCPU Kind = iota
	KindGPU
)

func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MemoryInfo is a snapshot of the device memory.
type MemoryInfo struct {
	Free  uint64
	Total uint64
}

// A Buffer is an array that lives on a device.
type Buffer struct {
	id    uint64
	owner string
	data  []complex128
}

// Len returns the number of elements in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the size of the buffer in bytes.
func (b *Buffer) Bytes() uint64 {
	return uint64(len(b.data)) * field.ElementSize
}

// MemoryQuerier can report and reclaim device memory.
type MemoryQuerier interface {
	// QueryMemory returns the current free and total memory.
	QueryMemory() (MemoryInfo, error)

	// ReleasePools returns pooled-but-unused memory to the device.
	ReleasePools() error
}

// Backend is the execution backend the core is written against.
type Backend interface {
	MemoryQuerier

	// Name returns the name of the backend.
	Name() string

	// Kind returns the hardware kind.
	Kind() Kind

	// Allocate transfers host data to the device.
	Allocate(host []complex128) (*Buffer, error)

	// ToHost copies a device buffer back to the host.
	ToHost(buf *Buffer) ([]complex128, error)

	// Free returns a buffer to the backend.
	Free(buf *Buffer)

	// Forward applies an unnormalized forward DFT along the given axes of a
	// buffer laid out in row-major order with the given shape.
	Forward(buf *Buffer, shape field.Shape, axes []int) error

	// Inverse applies an unnormalized inverse DFT along the given axes.
	Inverse(buf *Buffer, shape field.Shape, axes []int) error

	// Synchronize waits until all queued work has completed.
	Synchronize() error
}

// Policy decides which backend a process may run on.
type Policy int

// The execution policies.
const (
	// PolicyGPUOnly requires a GPU backend.
	PolicyGPUOnly Policy = iota

	// PolicyGPUPreferred uses a GPU backend if one is registered and the CPU
	// backend otherwise.
	PolicyGPUPreferred

	// PolicyCPUForTestsOnly runs on the CPU backend. It exists for tests and
	// small experiments.
	PolicyCPUForTestsOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyGPUOnly:
		return "gpu-only"
	case PolicyGPUPreferred:
		return "gpu-preferred"
	case PolicyCPUForTestsOnly:
		return "cpu-for-tests-only"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts the textual form of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu-only", "gpu_only":
		return PolicyGPUOnly, nil
	case "gpu-preferred", "gpu_preferred":
		return PolicyGPUPreferred, nil
	case "cpu-for-tests-only", "cpu_for_tests_only", "cpu":
		return PolicyCPUForTestsOnly, nil
	default:
		return 0, errs.Configf("policy", "unknown execution policy %q", s)
	}
}

// Registry holds the backends a composition root may choose from.
type Registry struct {
	backends map[Kind]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[Kind]Backend)}
}

// Register adds a backend. Registering two backends of the same kind is a
// programming error.
func (r *Registry) Register(b Backend) {
	if _, ok := r.backends[b.Kind()]; ok {
		panic(fmt.Sprintf("a %s backend is already registered", b.Kind()))
	}

	r.backends[b.Kind()] = b
}

// Select returns the backend allowed by the policy. It never falls back to a
// backend the policy does not allow.
func (r *Registry) Select(p Policy) (Backend, error) {
	switch p {
	case PolicyGPUOnly:
		if b, ok := r.backends[KindGPU]; ok {
			return b, nil
		}

		return nil, &errs.ResourceError{
			Op:  "select backend",
			Err: fmt.Errorf("policy %s requires a GPU backend, none is registered", p),
		}
	case PolicyGPUPreferred:
		if b, ok := r.backends[KindGPU]; ok {
			return b, nil
		}

		if b, ok := r.backends[KindCPU]; ok {
			return b, nil
		}
	case PolicyCPUForTestsOnly:
		if b, ok := r.backends[KindCPU]; ok {
			return b, nil
		}
	default:
		return nil, errs.Configf("policy", "unknown execution policy %d", int(p))
	}

	return nil, &errs.ResourceError{
		Op:  "select backend",
		Err: fmt.Errorf("no backend registered for policy %s", p),
	}
}
