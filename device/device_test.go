package device

import (
	"math/cmplx"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

var _ = Describe("Registry", func() {
	var (
		cpu *CPUBackend
		gpu *SimulatedGPU
	)

	BeforeEach(func() {
		cpu = NewCPUBackend()
		gpu = NewSimulatedGPU("gpu0", 1<<20)
	})

	It("should refuse to run gpu-only without a GPU", func() {
		r := NewRegistry()
		r.Register(cpu)

		_, err := r.Select(PolicyGPUOnly)
		Expect(errs.IsResource(err)).To(BeTrue())
	})

	It("should prefer the GPU when allowed", func() {
		r := NewRegistry()
		r.Register(cpu)
		r.Register(gpu)

		b, err := r.Select(PolicyGPUPreferred)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Kind()).To(Equal(KindGPU))
	})

	It("should fall back to the CPU only under gpu-preferred", func() {
		r := NewRegistry()
		r.Register(cpu)

		b, err := r.Select(PolicyGPUPreferred)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Kind()).To(Equal(KindCPU))
	})

	It("should never hand out the GPU for cpu-for-tests-only", func() {
		r := NewRegistry()
		r.Register(gpu)

		_, err := r.Select(PolicyCPUForTestsOnly)
		Expect(errs.IsResource(err)).To(BeTrue())
	})

	It("should panic on duplicated kinds", func() {
		r := NewRegistry()
		r.Register(gpu)

		Expect(func() { r.Register(NewSimulatedGPU("gpu1", 1024)) }).To(Panic())
	})

	It("should parse policies", func() {
		p, err := ParsePolicy("GPU-Preferred")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(PolicyGPUPreferred))

		_, err = ParsePolicy("tpu")
		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})
})

var _ = Describe("SimulatedGPU", func() {
	var gpu *SimulatedGPU

	BeforeEach(func() {
		gpu = NewSimulatedGPU("gpu0", 64*field.ElementSize)
	})

	It("should account for live and pooled memory", func() {
		buf, err := gpu.Allocate(make([]complex128, 16))
		Expect(err).NotTo(HaveOccurred())

		info, _ := gpu.QueryMemory()
		Expect(info.Free).To(Equal(uint64(48 * field.ElementSize)))

		gpu.Free(buf)
		info, _ = gpu.QueryMemory()
		Expect(info.Free).To(Equal(uint64(48 * field.ElementSize)))
		Expect(gpu.Stats().Pooled).To(Equal(uint64(16 * field.ElementSize)))

		Expect(gpu.ReleasePools()).To(Succeed())
		info, _ = gpu.QueryMemory()
		Expect(info.Free).To(Equal(info.Total))
	})

	It("should reuse pooled buffers", func() {
		buf, _ := gpu.Allocate(make([]complex128, 16))
		gpu.Free(buf)

		buf, err := gpu.Allocate([]complex128{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
		Expect(err).NotTo(HaveOccurred())
		Expect(gpu.Stats().Pooled).To(Equal(uint64(0)))

		host, err := gpu.ToHost(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(host[15]).To(Equal(complex(16, 0)))
	})

	It("should release the pool before failing an allocation", func() {
		buf, _ := gpu.Allocate(make([]complex128, 40))
		gpu.Free(buf)

		_, err := gpu.Allocate(make([]complex128, 60))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should report a resource error when memory runs out", func() {
		_, err := gpu.Allocate(make([]complex128, 40))
		Expect(err).NotTo(HaveOccurred())

		_, err = gpu.Allocate(make([]complex128, 40))
		re, ok := errs.AsResource(err)
		Expect(ok).To(BeTrue())
		Expect(re.RequiredBytes).To(Equal(uint64(40 * field.ElementSize)))
		Expect(re.AvailableBytes).To(Equal(uint64(24 * field.ElementSize)))
	})

	It("should refuse buffers of another device", func() {
		other := NewCPUBackend()
		buf, _ := other.Allocate(make([]complex128, 4))

		_, err := gpu.ToHost(buf)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Transforms", func() {
	var (
		backend Backend
		shape   field.Shape
	)

	BeforeEach(func() {
		backend = NewCPUBackend()
		shape = field.MustShape(4, 3, 2, 2, 1, 3, 5)
	})

	It("should transform a delta into a constant", func() {
		host := make([]complex128, shape.Size())
		host[0] = 1

		buf, err := backend.Allocate(host)
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.Forward(buf, shape, field.AllAxes)).To(Succeed())

		out, _ := backend.ToHost(buf)
		for _, v := range out {
			Expect(cmplx.Abs(v - 1)).To(BeNumerically("<", 1e-12))
		}
	})

	It("should scale by the number of elements on a round trip", func() {
		r := rand.New(rand.NewSource(42))
		host := make([]complex128, shape.Size())
		for i := range host {
			host[i] = complex(r.NormFloat64(), r.NormFloat64())
		}

		buf, _ := backend.Allocate(host)
		Expect(backend.Forward(buf, shape, field.AllAxes)).To(Succeed())
		Expect(backend.Inverse(buf, shape, field.AllAxes)).To(Succeed())

		out, _ := backend.ToHost(buf)
		n := complex(float64(shape.Size()), 0)
		for i := range out {
			Expect(cmplx.Abs(out[i]/n - host[i])).To(BeNumerically("<", 1e-10))
		}
	})

	It("should only touch the requested axes", func() {
		host := make([]complex128, shape.Size())
		host[0] = 1

		buf, _ := backend.Allocate(host)
		Expect(backend.Forward(buf, shape, []int{6})).To(Succeed())

		out, _ := backend.ToHost(buf)
		Expect(cmplx.Abs(out[4] - 1)).To(BeNumerically("<", 1e-12))
		Expect(cmplx.Abs(out[5])).To(BeNumerically("<", 1e-12))
	})

	It("should reject mismatched buffers", func() {
		buf, _ := backend.Allocate(make([]complex128, 3))

		err := backend.Forward(buf, shape, field.AllAxes)
		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})
})
