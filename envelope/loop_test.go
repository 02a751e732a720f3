package envelope

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/monitoring"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
	"github.com/sarchlab/envelope/tiling"
)

type fixedBudget struct {
	usable uint64
}

func (b fixedBudget) UsableBytes() (uint64, error) {
	return b.usable, nil
}

type memoryRecorder struct {
	lock    sync.Mutex
	tables  map[string]int
	rows    map[string][]any
	flushes int
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{
		tables: make(map[string]int),
		rows:   make(map[string][]any),
	}
}

func (r *memoryRecorder) CreateTable(name string, _ any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.tables[name]++
}

func (r *memoryRecorder) InsertData(name string, entry any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.rows[name] = append(r.rows[name], entry)
}

func (r *memoryRecorder) ListTables() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}

	return names
}

func (r *memoryRecorder) Flush() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.flushes++
}

func (r *memoryRecorder) Close() error {
	return nil
}

type barTracker struct {
	created   []*monitoring.ProgressBar
	completed int
}

func (t *barTracker) CreateProgressBar(
	name string,
	total uint64,
) *monitoring.ProgressBar {
	pb := &monitoring.ProgressBar{Name: name, Total: total}
	t.created = append(t.created, pb)

	return pb
}

func (t *barTracker) CompleteProgressBar(_ *monitoring.ProgressBar) {
	t.completed++
}

// failingSource fails to read any region that does not start at the origin
// of the first axis.
type failingSource struct {
	*field.Dense
}

func (s failingSource) ReadRegion(r field.Region) ([]complex128, error) {
	if r.Start[0] > 0 {
		return nil, errors.New("disk gone")
	}

	return s.Dense.ReadRegion(r)
}

func constantField(shape field.Shape, v complex128) *field.Dense {
	d := field.NewDense(shape)
	for i := range d.Data() {
		d.Data()[i] = v
	}

	return d
}

func plannerWithTile(tile int) *tiling.Planner {
	p, err := tiling.MakePlannerBuilder().
		WithBudget(fixedBudget{usable: 1 << 40}).
		WithTileOverride(tile).
		Build()
	Expect(err).NotTo(HaveOccurred())

	return p
}

func defaultSolver() *solver.TileSolver {
	s, err := solver.MakeBuilder().Build()
	Expect(err).NotTo(HaveOccurred())

	return s
}

var _ = Describe("Loop", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should converge in one iteration on a zero source", func() {
		domain := field.MustShape(16, 16, 16, 4, 4, 4, 8)

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(8)).
			WithSolver(defaultSolver()).
			WithOverlap(2).
			WithBatchSize(4).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx, field.NewDense(domain), 100, 1e-6)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Iterations).To(Equal(1))
		Expect(res.Field.Shape()).To(Equal(domain))
		Expect(field.Norm(res.Field.Data())).To(Equal(0.0))
		Expect(res.Plan.TileShape).To(Equal(field.MustShape(8, 8, 8, 4, 4, 4, 8)))
		Expect(res.Methods[solver.MethodTrivial]).To(Equal(27))
		Expect(res.Warnings).To(BeEmpty())
	})

	It("should solve with single-element tiles on a starved budget", func() {
		domain := field.MustShape(2, 2, 2, 1, 1, 1, 2)

		planner, err := tiling.MakePlannerBuilder().
			WithBudget(fixedBudget{usable: 1}).
			Build()
		Expect(err).NotTo(HaveOccurred())

		loop, err := MakeBuilder().
			WithPlanner(planner).
			WithSolver(defaultSolver()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx, constantField(domain, 0.1), 0, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Plan.TileShape).To(Equal(field.Uniform(1)))
		Expect(res.Field.Shape()).To(Equal(domain))
		Expect(field.AllFinite(res.Field.Data())).To(BeTrue())
		for _, v := range res.Field.Data() {
			Expect(v).NotTo(BeZero())
		}
		Expect(res.Converged).To(BeTrue())
	})

	It("should reach a fixed point on a constant source", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithOverlap(1).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx, constantField(domain, 0.1), 0, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Iterations).To(BeNumerically(">", 1))
		Expect(res.Iterations).To(BeNumerically("<", DefaultMaxIterations))
		Expect(res.Residual).To(BeNumerically("<", DefaultTolerance))
		Expect(res.Methods[solver.MethodDirect]).To(BeNumerically(">", 0))

		status := loop.Status()
		Expect(status.Running).To(BeFalse())
		Expect(status.Converged).To(BeTrue())
		Expect(status.Iteration).To(Equal(res.Iterations))
	})

	It("should return the best field with a warning at the iteration cap", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)
		core, logs := observer.New(zap.WarnLevel)

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithOverlap(1).
			WithLogger(zap.New(core)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx, constantField(domain, 0.1), 1, 1e-12)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeFalse())
		Expect(res.Iterations).To(Equal(1))
		Expect(res.Field).NotTo(BeNil())
		Expect(field.Norm(res.Field.Data())).To(BeNumerically(">", 0))
		Expect(res.Warnings).To(HaveLen(1))
		Expect(logs.FilterMessage("envelope solve did not converge").Len()).
			To(Equal(1))
	})

	It("should start from a caller field", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveFrom(ctx, field.NewDense(domain),
			constantField(domain, 1), 0, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Iterations).To(Equal(2))
		Expect(field.Norm(res.Field.Data())).To(Equal(0.0))
	})

	It("should reject an initial field of another shape", func() {
		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = loop.SolveFrom(ctx,
			field.NewDense(field.MustShape(4, 4, 1, 1, 1, 1, 2)),
			field.NewDense(field.MustShape(4, 4, 1, 1, 1, 1, 1)), 0, 0)

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should abort an iteration when a tile fails", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)
		rec := newMemoryRecorder()

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithRecorder(rec).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx,
			failingSource{constantField(domain, 0.1)}, 0, 0)

		Expect(err).To(MatchError(ContainSubstring("disk gone")))
		Expect(res.Field).To(BeNil())
		Expect(rec.rows[IterationTable]).To(BeEmpty())
		Expect(rec.rows[TileSolveTable]).To(BeEmpty())
	})

	It("should record iterations and tile solves", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)
		rec := newMemoryRecorder()

		loop, err := MakeBuilder().
			WithRunID("run-1").
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithOverlap(0).
			WithRecorder(rec).
			Build()
		Expect(err).NotTo(HaveOccurred())

		res, err := loop.SolveEnvelope(ctx, field.NewDense(domain), 0, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.tables).To(HaveKeyWithValue(IterationTable, 1))
		Expect(rec.tables).To(HaveKeyWithValue(TileSolveTable, 1))
		Expect(rec.rows[IterationTable]).To(HaveLen(res.Iterations))
		Expect(rec.rows[TileSolveTable]).To(HaveLen(4 * res.Iterations))
		Expect(rec.flushes).To(Equal(1))

		entry := rec.rows[IterationTable][0].(IterationEntry)
		Expect(entry.RunID).To(Equal("run-1"))
		Expect(entry.NumTiles).To(Equal(4))

		tile := rec.rows[TileSolveTable][0].(TileSolveEntry)
		Expect(tile.Method).To(Equal("trivial"))
	})

	It("should report iterations to hooks and progress bars", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)
		tracker := &barTracker{}

		sched, err := scheduling.MakeBuilder().WithNumStreams(2).Build()
		Expect(err).NotTo(HaveOccurred())

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			WithScheduler(sched).
			WithProgressTracker(tracker).
			Build()
		Expect(err).NotTo(HaveOccurred())

		tracer := hooking.NewAverageTimeTracer(
			hooking.NewWallClock(), hooking.FilterKind(IterationKind))
		loop.AcceptHook(tracer)

		res, err := loop.SolveEnvelope(ctx, constantField(domain, 0.1), 0, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(tracer.TotalCount()).To(Equal(uint64(res.Iterations)))
		Expect(tracker.created).To(HaveLen(res.Iterations))
		Expect(tracker.completed).To(Equal(res.Iterations))

		for _, pb := range tracker.created {
			Expect(pb.Finished).To(Equal(pb.Total))
			Expect(pb.InProgress).To(BeZero())
		}
	})

	It("should stop on a cancelled context", func() {
		domain := field.MustShape(4, 4, 1, 1, 1, 1, 2)

		loop, err := MakeBuilder().
			WithPlanner(plannerWithTile(2)).
			WithSolver(defaultSolver()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err = loop.SolveEnvelope(cctx, constantField(domain, 0.1), 0, 0)

		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = DescribeTable("Builder validation",
	func(b Builder) {
		_, err := b.Build()
		Expect(errs.IsConfiguration(err)).To(BeTrue())
	},
	Entry("missing planner", MakeBuilder()),
	Entry("negative overlap", MakeBuilder().
		WithPlanner(&tiling.Planner{}).
		WithSolver(&solver.TileSolver{}).
		WithOverlap(-1)),
	Entry("zero tolerance", MakeBuilder().
		WithPlanner(&tiling.Planner{}).
		WithSolver(&solver.TileSolver{}).
		WithTolerance(0)),
	Entry("smoothing without engine", MakeBuilder().
		WithPlanner(&tiling.Planner{}).
		WithSolver(&solver.TileSolver{}).
		WithSpectralSmoothing(0.5)),
)
