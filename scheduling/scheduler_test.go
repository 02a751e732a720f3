package scheduling

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/tiling"
)

type countingProgress struct {
	sync.Mutex
	inProgress uint64
	finished   uint64
}

func (p *countingProgress) IncrementInProgress(n uint64) {
	p.Lock()
	defer p.Unlock()
	p.inProgress += n
}

func (p *countingProgress) MoveInProgressToFinished(n uint64) {
	p.Lock()
	defer p.Unlock()
	p.inProgress -= n
	p.finished += n
}

func makeTiles(n int) []tiling.Tile {
	domain := field.MustShape(n, 1, 1, 1, 1, 1, 1)
	it, err := tiling.NewIterator(domain, field.Uniform(1), tiling.UniformOverlap(0))
	Expect(err).NotTo(HaveOccurred())

	return it.All()
}

var _ = Describe("StreamScheduler", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockBackend
		leakOpt  goleak.Option
		s        *StreamScheduler
	)

	BeforeEach(func() {
		leakOpt = goleak.IgnoreCurrent()
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockBackend(mockCtrl)

		var err error
		s, err = MakeBuilder().
			WithNumStreams(4).
			WithSynchronizer(backend).
			Build()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
		goleak.VerifyNone(GinkgoT(), leakOpt)
	})

	It("should partition into balanced contiguous spans", func() {
		Expect(s.Partition(10)).To(Equal([]Span{
			{0, 3}, {3, 6}, {6, 8}, {8, 10},
		}))
		Expect(s.Partition(2)).To(Equal([]Span{{0, 1}, {1, 2}}))
		Expect(s.Partition(0)).To(BeEmpty())
	})

	It("should process every tile in stream order and synchronize", func() {
		backend.EXPECT().Synchronize().Return(nil).Times(1)

		tiles := makeTiles(11)

		var lock sync.Mutex
		seen := make(map[int][]int)
		mismatched := 0

		err := s.Run(context.Background(), tiles,
			func(_ context.Context, stream, index int, t tiling.Tile) error {
				lock.Lock()
				defer lock.Unlock()

				if t.ID != index {
					mismatched++
				}
				seen[stream] = append(seen[stream], index)

				return nil
			})

		Expect(err).NotTo(HaveOccurred())
		Expect(mismatched).To(Equal(0))
		Expect(seen).To(HaveLen(4))

		total := 0
		for stream, indices := range seen {
			span := s.Partition(len(tiles))[stream]
			Expect(indices[0]).To(Equal(span.Begin))

			for k := 1; k < len(indices); k++ {
				Expect(indices[k]).To(Equal(indices[k-1] + 1))
			}

			total += len(indices)
		}
		Expect(total).To(Equal(len(tiles)))
	})

	It("should collect results in batch order", func() {
		backend.EXPECT().Synchronize().Return(nil)

		results, err := Collect(context.Background(), s, makeTiles(7),
			func(_ context.Context, _ int, t tiling.Tile) (int, error) {
				return t.ID * 10, nil
			})

		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(Equal([]int{0, 10, 20, 30, 40, 50, 60}))
	})

	It("should drop every result when a tile fails", func() {
		backend.EXPECT().Synchronize().Return(nil)

		boom := errors.New("boom")
		results, err := Collect(context.Background(), s, makeTiles(8),
			func(_ context.Context, _ int, t tiling.Tile) (int, error) {
				if t.ID == 5 {
					return 0, boom
				}

				return t.ID, nil
			})

		Expect(err).To(MatchError(boom))
		Expect(results).To(BeNil())
	})

	It("should cancel the other streams on failure", func() {
		backend.EXPECT().Synchronize().Return(nil)

		boom := errors.New("boom")
		err := s.Run(context.Background(), makeTiles(4),
			func(ctx context.Context, stream, _ int, _ tiling.Tile) error {
				if stream == 0 {
					return boom
				}

				<-ctx.Done()

				return ctx.Err()
			})

		Expect(err).To(MatchError(boom))
	})

	It("should stop a stream after its first failure", func() {
		backend.EXPECT().Synchronize().Return(nil)

		one, err := MakeBuilder().
			WithNumStreams(1).
			WithSynchronizer(backend).
			Build()
		Expect(err).NotTo(HaveOccurred())

		calls := 0
		err = one.Run(context.Background(), makeTiles(5),
			func(_ context.Context, _, index int, _ tiling.Tile) error {
				calls++
				if index == 1 {
					return errors.New("fail")
				}

				return nil
			})

		Expect(err).To(HaveOccurred())
		Expect(calls).To(Equal(2))
	})

	It("should report synchronization failures as resource errors", func() {
		backend.EXPECT().Synchronize().Return(errors.New("device lost"))

		err := s.Run(context.Background(), makeTiles(3),
			func(context.Context, int, int, tiling.Tile) error { return nil })

		Expect(errs.IsResource(err)).To(BeTrue())
	})

	It("should track progress", func() {
		backend.EXPECT().Synchronize().Return(nil)

		p := &countingProgress{}
		s.SetProgress(p)

		err := s.Run(context.Background(), makeTiles(9),
			func(context.Context, int, int, tiling.Tile) error { return nil })

		Expect(err).NotTo(HaveOccurred())
		Expect(p.finished).To(Equal(uint64(9)))
		Expect(p.inProgress).To(Equal(uint64(0)))
	})

	It("should reject zero streams", func() {
		_, err := MakeBuilder().WithNumStreams(0).Build()
		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})
})
