package solver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/tiling"
)

// TaskKind is the kind of the tasks a TileSolver reports to its hooks.
const TaskKind = "tile_solve"

// Method is the path a tile solve took.
type Method int

const (
	// MethodTrivial means the source was zero and so is the solution.
	MethodTrivial Method = iota
	MethodDirect
	MethodKrylov
	MethodRelaxation
)

func (m Method) String() string {
	switch m {
	case MethodTrivial:
		return "trivial"
	case MethodDirect:
		return "direct"
	case MethodKrylov:
		return "krylov"
	case MethodRelaxation:
		return "relaxation"
	default:
		return "unknown"
	}
}

// A Request describes one tile solve.
type Request struct {
	Tile    tiling.Tile
	Domain  field.Shape
	Current []complex128
	Source  []complex128

	// ParentTaskID links the solve to the task that issued it.
	ParentTaskID string
}

// A Result is the solution of one tile.
type Result struct {
	Tile       tiling.Tile
	Values     []complex128
	Method     Method
	Sweeps     int
	Iterations int
	Residual   float64
}

// A TileSolver solves L(a) a_new = source on single tiles, where L is built
// from the current tile values. Small tiles are factorized directly, larger
// ones use BiCGSTAB. A singular operator falls back to damped Gauss-Seidel.
type TileSolver struct {
	*hooking.HookableBase

	name   string
	coeffs Coefficients
	logger *zap.Logger

	directLimit   int
	krylovTol     float64
	krylovMaxIter int
	omega         float64
	maxSweeps     int
	sweepTol      float64
}

// Name returns the name of the solver.
func (s *TileSolver) Name() string {
	return s.name
}

// Coefficients returns the operator coefficients.
func (s *TileSolver) Coefficients() Coefficients {
	return s.coeffs
}

// Operator builds the operator of a tile.
func (s *TileSolver) Operator(
	t tiling.Tile,
	domain field.Shape,
	current []complex128,
) *Operator {
	return NewOperator(s.coeffs, t.Shape, current, t.TouchesBoundary(domain))
}

// Solve solves one tile.
func (s *TileSolver) Solve(ctx context.Context, req Request) (Result, error) {
	n := req.Tile.Size()
	if len(req.Current) != n || len(req.Source) != n {
		return Result{}, errs.Configf("tile",
			"%s needs %d values, got current %d and source %d",
			req.Tile, n, len(req.Current), len(req.Source))
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	taskID := hooking.NewTaskID()
	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    hooking.HookPosTaskStart,
		Item: hooking.TaskStart{
			ID:       taskID,
			ParentID: req.ParentTaskID,
			Kind:     TaskKind,
			What:     req.Tile.String(),
			Where:    s.name,
		},
	})

	res, err := s.solve(req)

	if err == nil {
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    hooking.HookPosTaskTag,
			Item: hooking.TaskTag{
				TaskID: taskID,
				What:   res.Method.String(),
				Detail: fmt.Sprintf("sweeps=%d iterations=%d residual=%g",
					res.Sweeps, res.Iterations, res.Residual),
			},
		})
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    hooking.HookPosTaskEnd,
		Item:   hooking.TaskEnd{ID: taskID},
	})

	return res, err
}

func (s *TileSolver) solve(req Request) (Result, error) {
	res := Result{Tile: req.Tile}

	if field.Norm(req.Source) == 0 {
		res.Method = MethodTrivial
		res.Values = make([]complex128, req.Tile.Size())

		return res, nil
	}

	op := s.Operator(req.Tile, req.Domain, req.Current)

	var (
		x   []complex128
		err error
	)

	if op.Size() <= s.directLimit {
		res.Method = MethodDirect
		x, err = solveDirect(op, req.Source)
	} else {
		var converged bool

		res.Method = MethodKrylov
		x, res.Iterations, converged, err = solveBiCGSTAB(
			op, req.Source, req.Current, s.krylovTol, s.krylovMaxIter)

		// A solve that never reaches the tolerance is stuck on a singular
		// or near-singular operator.
		if err == nil && !converged {
			err = errStalled
		}
	}

	if err == nil && !field.AllFinite(x) {
		err = errSingular
	}

	if err != nil {
		s.logger.Debug("falling back to relaxation",
			zap.Stringer("tile", req.Tile),
			zap.Stringer("method", res.Method),
			zap.Error(err))

		res.Method = MethodRelaxation
		x, res.Sweeps = relax(op, req.Source, req.Current,
			s.omega, s.maxSweeps, s.sweepTol)

		if !field.AllFinite(x) {
			return Result{}, &errs.NumericalError{
				Op:     "solve " + req.Tile.String(),
				Reason: "relaxation fallback produced non-finite values",
			}
		}
	}

	res.Values = x
	res.Residual = op.Residual(x, req.Source)

	return res, nil
}
