package envelope

import (
	"math"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
	"github.com/sarchlab/envelope/tiling"
)

// Loop defaults.
const (
	DefaultOverlap       = 2
	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-6
	DefaultQuenchSigma   = 3.0
)

// Builder can build solve loops.
type Builder struct {
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
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		overlap:       DefaultOverlap,
		maxIterations: DefaultMaxIterations,
		tolerance:     DefaultTolerance,
		quenchSigma:   DefaultQuenchSigma,
	}
}

// WithRunID sets the identifier of the run. A random one is used otherwise.
func (b Builder) WithRunID(id string) Builder {
	b.runID = id
	return b
}

// WithPlanner sets the planner that picks the tile shape.
func (b Builder) WithPlanner(p *tiling.Planner) Builder {
	b.planner = p
	return b
}

// WithScheduler sets the scheduler that dispatches tiles.
func (b Builder) WithScheduler(s *scheduling.StreamScheduler) Builder {
	b.scheduler = s
	return b
}

// WithSolver sets the tile solver.
func (b Builder) WithSolver(s *solver.TileSolver) Builder {
	b.solver = s
	return b
}

// WithMonitor makes every outer iteration check the memory thresholds.
func (b Builder) WithMonitor(m *budget.Monitor) Builder {
	b.monitor = m
	return b
}

// WithFFTEngine sets the engine used by the spectral operations.
func (b Builder) WithFFTEngine(e *fft.Engine) Builder {
	b.fft = e
	return b
}

// WithRecorder records iterations and tile solves.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithProgressTracker reports the tiles of every outer iteration.
func (b Builder) WithProgressTracker(p ProgressTracker) Builder {
	b.progress = p
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// WithOverlap sets how many points neighbouring tiles share. It is capped
// below the tile size on every axis.
func (b Builder) WithOverlap(n int) Builder {
	b.overlap = n
	return b
}

// WithMaxIterations sets the default iteration cap.
func (b Builder) WithMaxIterations(n int) Builder {
	b.maxIterations = n
	return b
}

// WithTolerance sets the default convergence tolerance.
func (b Builder) WithTolerance(tol float64) Builder {
	b.tolerance = tol
	return b
}

// WithBatchSize limits how many tiles are dispatched at once. Zero dispatches
// every tile of an iteration together.
func (b Builder) WithBatchSize(n int) Builder {
	b.batchSize = n
	return b
}

// WithQuenchSigma sets how many standard deviations above the tile mean an
// amplitude must be to count as a quench.
func (b Builder) WithQuenchSigma(sigma float64) Builder {
	b.quenchSigma = sigma
	return b
}

// WithSpectralSmoothing low-pass filters caller-supplied initial fields,
// keeping the given fraction of the frequencies.
func (b Builder) WithSpectralSmoothing(keep float64) Builder {
	b.smoothKeep = keep
	return b
}

func (b Builder) validate() error {
	if b.planner == nil {
		return errs.Configf("planner", "is required")
	}

	if b.solver == nil {
		return errs.Configf("solver", "is required")
	}

	if b.overlap < 0 {
		return errs.Configf("overlap", "must not be negative, got %d", b.overlap)
	}

	if b.maxIterations <= 0 {
		return errs.Configf("max_iterations",
			"must be positive, got %d", b.maxIterations)
	}

	if b.tolerance <= 0 || math.IsNaN(b.tolerance) {
		return errs.Configf("tolerance", "must be positive, got %g", b.tolerance)
	}

	if b.batchSize < 0 {
		return errs.Configf("batch_size",
			"must not be negative, got %d", b.batchSize)
	}

	if b.quenchSigma <= 0 {
		return errs.Configf("quench_sigma",
			"must be positive, got %g", b.quenchSigma)
	}

	if b.smoothKeep < 0 || b.smoothKeep > 1 {
		return errs.Configf("smoothing",
			"must be in [0, 1], got %g", b.smoothKeep)
	}

	if b.smoothKeep > 0 && b.fft == nil {
		return errs.Configf("smoothing", "needs an FFT engine")
	}

	return nil
}

// Build creates the loop.
func (b Builder) Build() (*Loop, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID := b.runID
	if runID == "" {
		runID = xid.New().String()
	}

	scheduler := b.scheduler
	if scheduler == nil {
		var err error

		scheduler, err = scheduling.MakeBuilder().WithLogger(logger).Build()
		if err != nil {
			return nil, err
		}
	}

	return &Loop{
		HookableBase:  &hooking.HookableBase{},
		runID:         runID,
		planner:       b.planner,
		scheduler:     scheduler,
		solver:        b.solver,
		monitor:       b.monitor,
		fft:           b.fft,
		recorder:      b.recorder,
		progress:      b.progress,
		logger:        logger,
		overlap:       b.overlap,
		maxIterations: b.maxIterations,
		tolerance:     b.tolerance,
		batchSize:     b.batchSize,
		quenchSigma:   b.quenchSigma,
		smoothKeep:    b.smoothKeep,
	}, nil
}
