package fft

import (
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// Builder can build FFT engines.
type Builder struct {
	backend    device.Backend
	budget     BudgetSource
	store      *field.SwapStore
	logger     *zap.Logger
	norm       Normalization
	spacing    [field.Rank]float64
	reference  [field.Rank]int
	strategy   Strategy
	adaptive   bool
	windowEdge int
}

// MakeBuilder creates a builder with orthonormal scaling and unit spacing.
func MakeBuilder() Builder {
	b := Builder{
		norm:     Orthonormal,
		strategy: StrategyExact,
	}

	for i := range b.spacing {
		b.spacing[i] = 1
	}

	return b
}

// WithBackend sets the device the transforms run on.
func (b Builder) WithBackend(backend device.Backend) Builder {
	b.backend = backend
	return b
}

// WithBudget sets the memory budget the transforms must respect.
func (b Builder) WithBudget(src BudgetSource) Builder {
	b.budget = src
	return b
}

// WithSwapStore sets where results of swapped fields are written.
func (b Builder) WithSwapStore(store *field.SwapStore) Builder {
	b.store = store
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// WithNormalization sets the scaling mode.
func (b Builder) WithNormalization(n Normalization) Builder {
	b.norm = n
	return b
}

// WithSpacing sets the grid spacing of every axis, used by the physics
// normalization.
func (b Builder) WithSpacing(dx [field.Rank]float64) Builder {
	b.spacing = dx
	return b
}

// WithReference sets the sample whose phase the physics inverse aligns.
func (b Builder) WithReference(coord [field.Rank]int) Builder {
	b.reference = coord
	return b
}

// WithStrategy sets the transform strategy.
func (b Builder) WithStrategy(s Strategy) Builder {
	b.strategy = s
	return b
}

// WithWindowEdge fixes the spatial edge of windows.
func (b Builder) WithWindowEdge(edge int) Builder {
	b.windowEdge = edge
	return b
}

// WithAdaptiveWindows lets the windowed strategy halve windows that do not
// fit.
func (b Builder) WithAdaptiveWindows() Builder {
	b.adaptive = true
	return b
}

func (b Builder) validate() error {
	if b.backend == nil {
		return errs.Configf("backend", "a device backend is required")
	}

	if b.budget == nil {
		return errs.Configf("budget", "a memory budget is required")
	}

	if b.norm != Orthonormal && b.norm != Physics {
		return errs.Configf("normalization", "unknown mode %d", int(b.norm))
	}

	if b.strategy != StrategyExact && b.strategy != StrategyWindowed {
		return errs.Configf("strategy", "unknown strategy %d", int(b.strategy))
	}

	for i, dx := range b.spacing {
		if !(dx > 0) {
			return errs.Configf("spacing",
				"axis %d spacing must be positive, got %g", i, dx)
		}
	}

	if b.windowEdge < 0 {
		return errs.Configf("window_edge",
			"must not be negative, got %d", b.windowEdge)
	}

	return nil
}

// Build creates the engine.
func (b Builder) Build() (*Engine, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		backend:    b.backend,
		budget:     b.budget,
		store:      b.store,
		logger:     logger,
		norm:       b.norm,
		spacing:    b.spacing,
		reference:  b.reference,
		strategy:   b.strategy,
		adaptive:   b.adaptive,
		windowEdge: b.windowEdge,
	}, nil
}
