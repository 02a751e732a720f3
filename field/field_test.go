package field

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/envelope/errs"
)

func randomDense(shape Shape, seed int64) *Dense {
	r := rand.New(rand.NewSource(seed))
	d := NewDense(shape)

	for i := range d.data {
		d.data[i] = complex(r.NormFloat64(), r.NormFloat64())
	}

	return d
}

var _ = Describe("Shape", func() {
	It("should reject shapes that are not 7D", func() {
		_, err := NewShape(4, 4, 4)

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should reject non-positive extents", func() {
		_, err := NewShape(4, 4, 0, 2, 2, 2, 2)

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should convert between index and coordinate", func() {
		s := MustShape(3, 4, 5, 2, 3, 2, 4)

		for _, idx := range []int{0, 1, 17, 999, s.Size() - 1} {
			Expect(s.Index(s.Coord(idx))).To(Equal(idx))
		}

		strides := s.Strides()
		Expect(strides[Rank-1]).To(Equal(1))
		Expect(strides[0]).To(Equal(s.Size() / 3))
	})

	It("should group axes", func() {
		Expect(GroupOf(0)).To(Equal(Spatial))
		Expect(GroupOf(4)).To(Equal(Phase))
		Expect(GroupOf(6)).To(Equal(Temporal))
	})
})

var _ = Describe("Dense", func() {
	var shape Shape

	BeforeEach(func() {
		shape = MustShape(4, 3, 3, 2, 2, 2, 3)
	})

	It("should read back what was written into a region", func() {
		d := NewDense(shape)
		r := Region{
			Start: [Rank]int{1, 0, 1, 0, 1, 0, 1},
			End:   [Rank]int{3, 2, 3, 2, 2, 1, 3},
		}

		data := make([]complex128, r.Size())
		for i := range data {
			data[i] = complex(float64(i), -float64(i))
		}

		Expect(d.WriteRegion(r, data)).To(Succeed())

		back, err := d.ReadRegion(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(data))

		Expect(d.At([Rank]int{1, 0, 1, 0, 1, 0, 1})).To(Equal(complex(0, 0)))
		Expect(d.At([Rank]int{1, 0, 1, 0, 1, 0, 2})).To(Equal(complex(1, -1)))
		Expect(d.At([Rank]int{0, 0, 0, 0, 0, 0, 0})).To(Equal(complex(0, 0)))
	})

	It("should reject regions outside the domain", func() {
		d := NewDense(shape)
		r := shape.Full()
		r.End[0] = 5

		_, err := d.ReadRegion(r)
		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should stream batches that cover the array", func() {
		d := randomDense(shape, 1)
		slab := shape.Bytes() / uint64(shape[0])

		it := d.IterBatches(slab * 3)
		out := NewDense(shape)
		count := 0

		for {
			b, ok := it.Next()
			if !ok {
				break
			}

			count++
			Expect(out.WriteRegion(b.Region, b.Data)).To(Succeed())
		}

		Expect(it.Err()).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
		Expect(out.Data()).To(Equal(d.Data()))
	})

	It("should never produce batches smaller than a slab", func() {
		Expect(SlabsPerBatch(shape, 1)).To(Equal(1))
		Expect(SlabsPerBatch(shape, shape.Bytes()*10)).To(Equal(shape[0]))
	})
})

var _ = Describe("Swapped", func() {
	var (
		store *SwapStore
		shape Shape
	)

	BeforeEach(func() {
		var err error
		store, err = OpenSwapStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		shape = MustShape(5, 2, 3, 2, 2, 1, 4)
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("should round trip a resident array", func() {
		d := randomDense(shape, 7)

		s, err := store.Swap(d)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.IsSwapped()).To(BeTrue())

		back, err := Materialize(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Data()).To(Equal(d.Data()))
	})

	It("should read zeros from slabs never written", func() {
		s, err := store.NewArray(shape)
		Expect(err).NotTo(HaveOccurred())

		data, err := s.ReadRegion(shape.Full())
		Expect(err).NotTo(HaveOccurred())
		Expect(Norm(data)).To(Equal(0.0))
	})

	It("should merge partial writes with existing slab content", func() {
		d := randomDense(shape, 3)
		s, err := store.Swap(d)
		Expect(err).NotTo(HaveOccurred())

		r := Region{
			Start: [Rank]int{1, 0, 1, 0, 0, 0, 0},
			End:   [Rank]int{4, 1, 2, 2, 2, 1, 2},
		}
		patch := make([]complex128, r.Size())
		for i := range patch {
			patch[i] = complex(100, float64(i))
		}

		Expect(s.WriteRegion(r, patch)).To(Succeed())
		Expect(d.WriteRegion(r, patch)).To(Succeed())
		Expect(s.Flush()).To(Succeed())

		back, err := Materialize(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Data()).To(Equal(d.Data()))
	})

	It("should drop an array from the store", func() {
		d := randomDense(shape, 5)
		s, err := store.Swap(d)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Release()).To(Succeed())

		data, err := s.ReadRegion(shape.Full())
		Expect(err).NotTo(HaveOccurred())
		Expect(Norm(data)).To(Equal(0.0))
	})
})

var _ = Describe("OuterProduct", func() {
	It("should repeat a spatial block along unit profiles", func() {
		spatial := []complex128{1, 2, 3, 4, 5, 6, 7, 8}
		f, err := OuterProduct([3]int{2, 2, 2}, spatial, UnitProfiles([3]int{2, 3, 1}, 4))
		Expect(err).NotTo(HaveOccurred())

		Expect(f.Shape()).To(Equal(MustShape(2, 2, 2, 2, 3, 1, 4)))
		Expect(f.At([Rank]int{1, 0, 1, 1, 2, 0, 3})).To(Equal(complex(6, 0)))
		Expect(f.At([Rank]int{0, 0, 0, 0, 0, 0, 0})).To(Equal(complex(1, 0)))
	})

	It("should multiply the axis profiles", func() {
		profiles := UnitProfiles([3]int{2, 1, 1}, 2)
		profiles[0] = []complex128{1, 1i}
		profiles[3] = []complex128{2, 3}

		f, err := OuterProduct([3]int{1, 1, 1}, []complex128{5}, profiles)
		Expect(err).NotTo(HaveOccurred())

		Expect(f.At([Rank]int{0, 0, 0, 1, 0, 0, 1})).To(Equal(complex(0, 15)))
		Expect(f.At([Rank]int{0, 0, 0, 0, 0, 0, 0})).To(Equal(complex(10, 0)))
	})

	It("should refuse mismatched spatial blocks", func() {
		_, err := OuterProduct([3]int{2, 2, 2}, make([]complex128, 7), UnitProfiles([3]int{1, 1, 1}, 1))

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})
})
