package envelope

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/solver"
)

func fftEngine(norm fft.Normalization) *fft.Engine {
	monitor, err := budget.MakeBuilder().WithOverride(1<<30, 1<<31).Build()
	Expect(err).NotTo(HaveOccurred())

	e, err := fft.MakeBuilder().
		WithBackend(device.NewCPUBackend()).
		WithBudget(monitor).
		WithNormalization(norm).
		Build()
	Expect(err).NotTo(HaveOccurred())

	return e
}

var _ = Describe("DetectQuenches", func() {
	var (
		ctx    context.Context
		domain field.Shape
		loop   *Loop
	)

	BeforeEach(func() {
		ctx = context.Background()
		domain = field.MustShape(8, 1, 1, 1, 1, 1, 16)

		var err error
		loop, err = MakeBuilder().
			WithPlanner(plannerWithTile(8)).
			WithSolver(defaultSolver()).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should not flag a uniform field", func() {
		report, err := loop.DetectQuenches(ctx, constantField(domain, 1))

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Count).To(BeZero())
		Expect(report.Events).To(BeEmpty())
		Expect(report.TilesScanned).To(Equal(2))
	})

	It("should flag a spike in its own tile", func() {
		f := constantField(domain, 1)
		spike := [field.Rank]int{3, 0, 0, 0, 0, 0, 12}
		f.Set(spike, 100)

		report, err := loop.DetectQuenches(ctx, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Count).To(Equal(1))
		Expect(report.Events).To(HaveLen(1))

		e := report.Events[0]
		Expect(e.TileID).To(Equal(1))
		Expect(e.PeakAt).To(Equal(spike))
		Expect(e.Peak).To(BeNumerically("~", 100, 1e-12))
		Expect(e.Threshold).To(BeNumerically(">", e.Mean))
	})
})

var _ = Describe("ComputeImpedance", func() {
	It("should equal the diagonal when there is no coupling", func() {
		c := solver.DefaultCoefficients()
		c.Cutoff = 0
		c.Boundary = 0

		s, err := solver.MakeBuilder().WithCoefficients(c).Build()
		Expect(err).NotTo(HaveOccurred())

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(s).
			Build()
		Expect(err).NotTo(HaveOccurred())

		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)
		z, err := loop.ComputeImpedance(context.Background(),
			constantField(domain, 0.5))
		Expect(err).NotTo(HaveOccurred())

		want := complex(1+0.1*0.25+0.5, 0.05/1.25)
		for _, v := range z.Data() {
			Expect(real(v)).To(BeNumerically("~", real(want), 1e-12))
			Expect(imag(v)).To(BeNumerically("~", imag(want), 1e-12))
		}
	})

	It("should use the diagonal where the field is zero", func() {
		c := solver.DefaultCoefficients()
		c.Boundary = 0

		s, err := solver.MakeBuilder().WithCoefficients(c).Build()
		Expect(err).NotTo(HaveOccurred())

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(s).
			Build()
		Expect(err).NotTo(HaveOccurred())

		domain := field.MustShape(4, 1, 1, 1, 1, 1, 1)
		z, err := loop.ComputeImpedance(context.Background(),
			field.NewDense(domain))
		Expect(err).NotTo(HaveOccurred())

		for _, v := range z.Data() {
			Expect(real(v)).To(BeNumerically("~", 1+0.5, 1e-12))
			Expect(imag(v)).To(BeNumerically("~", 0.05, 1e-12))
		}
	})
})

var _ = Describe("Spectral operations", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	build := func(e *fft.Engine) *Loop {
		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithFFTEngine(e).
			Build()
		Expect(err).NotTo(HaveOccurred())

		return loop
	}

	It("should spread a delta evenly over the temporal spectrum", func() {
		loop := build(fftEngine(fft.Orthonormal))

		domain := field.MustShape(2, 2, 2, 1, 1, 1, 4)
		f := field.NewDense(domain)
		f.Set([field.Rank]int{}, 1)

		report, err := loop.SpectralEnergy(ctx, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Method).To(Equal(fft.MethodDirect))
		Expect(report.TotalEnergy).To(BeNumerically("~", 1, 1e-12))
		Expect(report.TemporalSpectrum).To(HaveLen(4))
		for _, e := range report.TemporalSpectrum {
			Expect(e).To(BeNumerically("~", 0.25, 1e-12))
		}
	})

	It("should drop swapped spectra from the swap store", func() {
		store, err := field.OpenSwapStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		monitor, err := budget.MakeBuilder().WithOverride(1<<30, 1<<31).Build()
		Expect(err).NotTo(HaveOccurred())

		e, err := fft.MakeBuilder().
			WithBackend(device.NewCPUBackend()).
			WithBudget(monitor).
			WithSwapStore(store).
			Build()
		Expect(err).NotTo(HaveOccurred())

		loop := build(e)
		domain := field.MustShape(8, 2, 2, 1, 1, 1, 2)

		swapped, err := store.Swap(constantField(domain, 1))
		Expect(err).NotTo(HaveOccurred())

		report, err := loop.SpectralEnergy(ctx, swapped)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Method).To(Equal(fft.MethodStreamed))
		Expect(report.TotalEnergy).To(BeNumerically("~", 64, 1e-9))

		_, err = loop.Smooth(ctx, swapped, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Arrays()).To(Equal(1))
	})

	It("should need an engine", func() {
		loop := build(nil)

		_, err := loop.SpectralEnergy(ctx,
			field.NewDense(field.MustShape(2, 1, 1, 1, 1, 1, 1)))

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should keep a constant field and remove the Nyquist mode", func() {
		loop := build(fftEngine(fft.Orthonormal))
		domain := field.MustShape(4, 1, 1, 1, 1, 1, 1)

		flat, err := loop.Smooth(ctx, constantField(domain, 2), 0.5)
		Expect(err).NotTo(HaveOccurred())
		for _, v := range flat.Data() {
			Expect(real(v)).To(BeNumerically("~", 2, 1e-12))
			Expect(imag(v)).To(BeNumerically("~", 0, 1e-12))
		}

		alternating := field.NewDense(domain)
		for i := range alternating.Data() {
			alternating.Data()[i] = complex(math.Pow(-1, float64(i)), 0)
		}

		smoothed, err := loop.Smooth(ctx, alternating, 0.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(field.Norm(smoothed.Data())).To(BeNumerically("<", 1e-12))
	})

	It("should refuse physics-normalized engines", func() {
		loop := build(fftEngine(fft.Physics))

		_, err := loop.Smooth(ctx,
			field.NewDense(field.MustShape(4, 1, 1, 1, 1, 1, 1)), 0.5)

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})
})
