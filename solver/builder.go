package solver

import (
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/hooking"
)

// Default solver parameters.
const (
	DefaultDirectLimit   = 512
	DefaultKrylovTol     = 1e-10
	DefaultKrylovMaxIter = 500
	DefaultOmega         = 0.8
	DefaultMaxSweeps     = 10
	DefaultSweepTol      = 1e-6
)

// Builder can build tile solvers.
type Builder struct {
	name          string
	coeffs        Coefficients
	logger        *zap.Logger
	directLimit   int
	krylovTol     float64
	krylovMaxIter int
	omega         float64
	maxSweeps     int
	sweepTol      float64
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name:          "TileSolver",
		coeffs:        DefaultCoefficients(),
		directLimit:   DefaultDirectLimit,
		krylovTol:     DefaultKrylovTol,
		krylovMaxIter: DefaultKrylovMaxIter,
		omega:         DefaultOmega,
		maxSweeps:     DefaultMaxSweeps,
		sweepTol:      DefaultSweepTol,
	}
}

// WithName sets the name reported in task traces.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithCoefficients sets the operator coefficients.
func (b Builder) WithCoefficients(c Coefficients) Builder {
	b.coeffs = c
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// WithDirectLimit sets the largest tile, in elements, solved by
// factorization.
func (b Builder) WithDirectLimit(n int) Builder {
	b.directLimit = n
	return b
}

// WithKrylov sets the tolerance and iteration cap of BiCGSTAB.
func (b Builder) WithKrylov(tol float64, maxIter int) Builder {
	b.krylovTol = tol
	b.krylovMaxIter = maxIter
	return b
}

// WithRelaxation sets the damping, sweep cap and tolerance of the
// Gauss-Seidel fallback.
func (b Builder) WithRelaxation(omega float64, maxSweeps int, tol float64) Builder {
	b.omega = omega
	b.maxSweeps = maxSweeps
	b.sweepTol = tol
	return b
}

func (b Builder) validate() error {
	if err := b.coeffs.Validate(); err != nil {
		return err
	}

	if b.directLimit < 0 {
		return errs.Configf("direct_limit", "must not be negative, got %d", b.directLimit)
	}

	if b.krylovTol <= 0 || b.krylovMaxIter < 1 {
		return errs.Configf("krylov",
			"tolerance %g and iterations %d must be positive",
			b.krylovTol, b.krylovMaxIter)
	}

	if b.omega <= 0 || b.omega >= 2 {
		return errs.Configf("relaxation", "omega must be in (0, 2), got %g", b.omega)
	}

	if b.maxSweeps < 1 || b.sweepTol <= 0 {
		return errs.Configf("relaxation",
			"sweeps %d and tolerance %g must be positive", b.maxSweeps, b.sweepTol)
	}

	return nil
}

// Build creates the solver.
func (b Builder) Build() (*TileSolver, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TileSolver{
		HookableBase:  &hooking.HookableBase{},
		name:          b.name,
		coeffs:        b.coeffs,
		logger:        logger,
		directLimit:   b.directLimit,
		krylovTol:     b.krylovTol,
		krylovMaxIter: b.krylovMaxIter,
		omega:         b.omega,
		maxSweeps:     b.maxSweeps,
		sweepTol:      b.sweepTol,
	}, nil
}
