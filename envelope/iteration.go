package envelope

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
	"github.com/sarchlab/envelope/tiling"
)

type iterationOutput struct {
	next     *field.Dense
	change   float64
	plan     tiling.Plan
	numTiles int
	methods  map[solver.Method]int
}

// iterate runs one outer iteration. The merged field is only returned when
// every tile of the iteration was solved.
func (l *Loop) iterate(
	ctx context.Context,
	iter int,
	source field.Array,
	cur *field.Dense,
) (iterationOutput, error) {
	start := time.Now()

	if err := l.checkBudget(); err != nil {
		return iterationOutput{}, err
	}

	domain := cur.Shape()

	it, plan, err := l.newIterator(domain, true)
	if err != nil {
		return iterationOutput{}, err
	}

	taskID := hooking.NewTaskID()
	l.InvokeHook(hooking.HookCtx{
		Domain: l,
		Pos:    hooking.HookPosTaskStart,
		Item: hooking.TaskStart{
			ID:    taskID,
			Kind:  IterationKind,
			What:  fmt.Sprintf("iteration %d", iter),
			Where: l.runID,
		},
	})
	defer l.InvokeHook(hooking.HookCtx{
		Domain: l,
		Pos:    hooking.HookPosTaskEnd,
		Item:   hooking.TaskEnd{ID: taskID},
	})

	pb := l.startProgress(fmt.Sprintf("%s iteration %d", l.runID, iter), it.Count())
	defer l.endProgress(pb)

	merger := tiling.NewMerger(domain)
	methods := make(map[solver.Method]int)
	var rows []TileSolveEntry

	for {
		tiles := l.nextBatch(it)
		if len(tiles) == 0 {
			break
		}

		results, err := scheduling.Collect(ctx, l.scheduler, tiles,
			func(ctx context.Context, _ int, t tiling.Tile) (solver.Result, error) {
				return l.solveTile(ctx, t, domain, source, cur, taskID)
			})
		if err != nil {
			l.logger.Debug("iteration aborted",
				zap.Int("iteration", iter),
				zap.Int("merged_tiles", merger.NumTiles()),
				zap.Error(err))

			return iterationOutput{}, err
		}

		for _, r := range results {
			if err := merger.Add(r.Tile, r.Values); err != nil {
				return iterationOutput{}, err
			}

			methods[r.Method]++
		}

		rows = l.appendTileRows(rows, iter, results)
	}

	next := merger.Result()

	change := field.DiffNorm(next.Data(), cur.Data())
	if n := field.Norm(cur.Data()); n > 0 {
		change /= n
	}

	out := iterationOutput{
		next:     next,
		change:   change,
		plan:     plan,
		numTiles: it.Count(),
		methods:  methods,
	}

	l.record(iter, out, rows, elapsed(start))

	return out, nil
}

func (l *Loop) solveTile(
	ctx context.Context,
	t tiling.Tile,
	domain field.Shape,
	source field.Array,
	cur *field.Dense,
	parentTaskID string,
) (solver.Result, error) {
	r := t.Region()

	current, err := cur.ReadRegion(r)
	if err != nil {
		return solver.Result{}, err
	}

	src, err := source.ReadRegion(r)
	if err != nil {
		return solver.Result{}, err
	}

	return l.solver.Solve(ctx, solver.Request{
		Tile:         t,
		Domain:       domain,
		Current:      current,
		Source:       src,
		ParentTaskID: parentTaskID,
	})
}
