// Package envelope iterates the tiled envelope solve to a whole-domain fixed
// point and provides the diagnostics computed on solved fields.
package envelope

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/monitoring"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
	"github.com/sarchlab/envelope/tiling"
)

// IterationKind is the kind of the tasks that the loop reports for every outer
// iteration.
const IterationKind = "envelope_iteration"

// A ProgressTracker creates one progress bar per outer iteration.
type ProgressTracker interface {
	CreateProgressBar(name string, total uint64) *monitoring.ProgressBar
	CompleteProgressBar(pb *monitoring.ProgressBar)
}

// A Result is the outcome of a solve.
type Result struct {
	Field      *field.Dense
	Iterations int
	Converged  bool

	// Residual is the relative change of the returned field against the
	// field it was computed from.
	Residual float64

	Plan     tiling.Plan
	Methods  map[solver.Method]int
	Warnings []string
}

// Status is a snapshot of a running or finished solve.
type Status struct {
	RunID      string  `json:"run_id"`
	Running    bool    `json:"running"`
	Iteration  int     `json:"iteration"`
	Change     float64 `json:"change"`
	BestChange float64 `json:"best_change"`
	TileShape  string  `json:"tile_shape"`
	NumTiles   int     `json:"num_tiles"`
	Converged  bool    `json:"converged"`
}

// A Loop runs the tile, solve and merge cycle of the envelope equation.
type Loop struct {
	*hooking.HookableBase

	runID     string
	planner   *tiling.Planner
	scheduler *scheduling.StreamScheduler
	solver    *solver.TileSolver
	monitor   *budget.Monitor
	fft       *fft.Engine
	recorder  datarecording.DataRecorder
	progress  ProgressTracker
	logger    *zap.Logger

	overlap       int
	maxIterations int
	tolerance     float64
	batchSize     int
	quenchSigma   float64
	smoothKeep    float64

	tablesOnce sync.Once

	statusLock sync.RWMutex
	status     Status
}

// RunID returns the identifier written into every recorded row.
func (l *Loop) RunID() string {
	return l.runID
}

// Status returns the progress of the latest solve.
func (l *Loop) Status() Status {
	l.statusLock.RLock()
	defer l.statusLock.RUnlock()

	return l.status
}

func (l *Loop) updateStatus(fn func(s *Status)) {
	l.statusLock.Lock()
	fn(&l.status)
	l.statusLock.Unlock()
}

// SolveEnvelope solves from a zero initial field. A non-positive
// maxIterations or tolerance selects the loop default.
func (l *Loop) SolveEnvelope(
	ctx context.Context,
	source field.Array,
	maxIterations int,
	tolerance float64,
) (Result, error) {
	return l.SolveFrom(ctx, source, nil, maxIterations, tolerance)
}

// SolveFrom solves starting from the given initial field. A nil initial field
// starts from zero.
func (l *Loop) SolveFrom(
	ctx context.Context,
	source, initial field.Array,
	maxIterations int,
	tolerance float64,
) (Result, error) {
	if maxIterations <= 0 {
		maxIterations = l.maxIterations
	}

	if tolerance <= 0 || math.IsNaN(tolerance) {
		tolerance = l.tolerance
	}

	domain := source.Shape()
	if err := domain.Validate(); err != nil {
		return Result{}, err
	}

	cur, err := l.initialField(ctx, domain, initial)
	if err != nil {
		return Result{}, err
	}

	l.updateStatus(func(s *Status) {
		*s = Status{RunID: l.runID, Running: true}
	})
	defer l.updateStatus(func(s *Status) { s.Running = false })

	res := Result{Methods: make(map[solver.Method]int)}
	best, bestChange := cur, math.Inf(1)

	for iter := 1; iter <= maxIterations; iter++ {
		out, err := l.iterate(ctx, iter, source, cur)
		if err != nil {
			return Result{}, fmt.Errorf("iteration %d: %w", iter, err)
		}

		for m, n := range out.methods {
			res.Methods[m] += n
		}

		res.Plan = out.plan
		res.Iterations = iter

		if out.change < bestChange {
			best, bestChange = out.next, out.change
		}

		l.updateStatus(func(s *Status) {
			s.Iteration = iter
			s.Change = out.change
			s.BestChange = bestChange
			s.TileShape = out.plan.TileShape.String()
			s.NumTiles = out.numTiles
		})

		l.logger.Debug("outer iteration done",
			zap.String("run", l.runID),
			zap.Int("iteration", iter),
			zap.Float64("change", out.change),
			zap.Int("tiles", out.numTiles))

		if out.change < tolerance {
			res.Field = out.next
			res.Converged = true
			res.Residual = out.change

			l.updateStatus(func(s *Status) { s.Converged = true })
			l.flushRecorder()

			return res, nil
		}

		cur = out.next
	}

	msg := fmt.Sprintf(
		"not converged after %d iterations, best change %g, tolerance %g",
		maxIterations, bestChange, tolerance)
	l.logger.Warn("envelope solve did not converge",
		zap.String("run", l.runID),
		zap.Int("iterations", maxIterations),
		zap.Float64("best_change", bestChange),
		zap.Float64("tolerance", tolerance))

	res.Field = best
	res.Residual = bestChange
	res.Warnings = append(res.Warnings, msg)

	l.flushRecorder()

	return res, nil
}

func (l *Loop) initialField(
	ctx context.Context,
	domain field.Shape,
	initial field.Array,
) (*field.Dense, error) {
	if initial == nil {
		return field.NewDense(domain), nil
	}

	if initial.Shape() != domain {
		return nil, errs.Configf("initial",
			"shape %v does not match the source shape %v",
			initial.Shape(), domain)
	}

	d, err := field.Materialize(initial)
	if err != nil {
		return nil, err
	}

	cur := d.Clone()

	if l.smoothKeep > 0 && l.fft != nil {
		smoothed, err := l.Smooth(ctx, cur, l.smoothKeep)
		if err != nil {
			return nil, fmt.Errorf("smoothing initial field: %w", err)
		}

		cur = smoothed
	}

	return cur, nil
}

// overlapFor caps the overlap below the tile size on every axis.
func (l *Loop) overlapFor(tile field.Shape) [field.Rank]int {
	var o [field.Rank]int
	for a := range o {
		o[a] = max(min(l.overlap, tile[a]-1), 0)
	}

	return o
}

func (l *Loop) newIterator(
	domain field.Shape,
	overlap bool,
) (*tiling.Iterator, tiling.Plan, error) {
	plan, err := l.planner.Plan(domain)
	if err != nil {
		return nil, tiling.Plan{}, err
	}

	o := tiling.UniformOverlap(0)
	if overlap {
		o = l.overlapFor(plan.TileShape)
	}

	it, err := tiling.NewIterator(domain, plan.TileShape, o)
	if err != nil {
		return nil, tiling.Plan{}, err
	}

	return it.WithEstimator(l.planner.Estimate), plan, nil
}

// nextBatch pulls up to batchSize tiles from the iterator. A batch size of
// zero takes every remaining tile.
func (l *Loop) nextBatch(it *tiling.Iterator) []tiling.Tile {
	var tiles []tiling.Tile

	for l.batchSize <= 0 || len(tiles) < l.batchSize {
		t, ok := it.Next()
		if !ok {
			break
		}

		tiles = append(tiles, t)
	}

	return tiles
}

// checkBudget fails when memory use is past the critical threshold even after
// reclaiming pooled memory.
func (l *Loop) checkBudget() error {
	if l.monitor == nil {
		return nil
	}

	_, err := l.monitor.Check()
	if err == nil || !errs.IsResource(err) {
		return err
	}

	l.logger.Warn("memory critical, reclaiming pools", zap.Error(err))

	if rerr := l.monitor.Reclaim(); rerr != nil {
		return rerr
	}

	l.planner.Invalidate()

	_, err = l.monitor.Check()

	return err
}

func (l *Loop) startProgress(name string, total int) *monitoring.ProgressBar {
	if l.progress == nil {
		return nil
	}

	pb := l.progress.CreateProgressBar(name, uint64(total))
	l.scheduler.SetProgress(pb)

	return pb
}

func (l *Loop) endProgress(pb *monitoring.ProgressBar) {
	if pb == nil {
		return
	}

	l.scheduler.SetProgress(nil)
	l.progress.CompleteProgressBar(pb)
}

func elapsed(since time.Time) float64 {
	return time.Since(since).Seconds()
}
