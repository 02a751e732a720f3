package budget

import (
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/errs"
)

// Default thresholds.
const (
	DefaultWarningThreshold  = 0.75
	DefaultCriticalThreshold = 0.9
	DefaultTargetUtilization = 0.8
)

// Builder can build memory monitors.
type Builder struct {
	querier  device.MemoryQuerier
	logger   *zap.Logger
	override *device.MemoryInfo

	warningThreshold  float64
	criticalThreshold float64
	targetUtilization float64
}

// MakeBuilder creates a builder with default thresholds.
func MakeBuilder() Builder {
	return Builder{
		warningThreshold:  DefaultWarningThreshold,
		criticalThreshold: DefaultCriticalThreshold,
		targetUtilization: DefaultTargetUtilization,
	}
}

// WithBackend sets the backend whose memory is monitored.
func (b Builder) WithBackend(q device.MemoryQuerier) Builder {
	b.querier = q
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// WithWarningThreshold sets the warning usage ratio.
func (b Builder) WithWarningThreshold(t float64) Builder {
	b.warningThreshold = t
	return b
}

// WithCriticalThreshold sets the critical usage ratio.
func (b Builder) WithCriticalThreshold(t float64) Builder {
	b.criticalThreshold = t
	return b
}

// WithTargetUtilization sets the fraction of free memory requests may use.
func (b Builder) WithTargetUtilization(t float64) Builder {
	b.targetUtilization = t
	return b
}

// WithOverride pins the memory snapshot instead of querying the backend.
func (b Builder) WithOverride(free, total uint64) Builder {
	b.override = &device.MemoryInfo{Free: free, Total: total}
	return b
}

func (b Builder) validate() error {
	if b.warningThreshold <= 0 || b.warningThreshold > 1 {
		return errs.Configf("warning_threshold",
			"must be in (0, 1], got %g", b.warningThreshold)
	}

	if b.criticalThreshold < b.warningThreshold || b.criticalThreshold > 1 {
		return errs.Configf("critical_threshold",
			"must be in [warning_threshold, 1], got %g", b.criticalThreshold)
	}

	if b.targetUtilization <= 0 || b.targetUtilization > 1 {
		return errs.Configf("target_utilization",
			"must be in (0, 1], got %g", b.targetUtilization)
	}

	if b.override != nil && b.override.Free > b.override.Total {
		return errs.Configf("override",
			"free memory %d exceeds total %d", b.override.Free, b.override.Total)
	}

	return nil
}

// Build creates the monitor.
func (b Builder) Build() (*Monitor, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		querier:           b.querier,
		logger:            logger,
		override:          b.override,
		warningThreshold:  b.warningThreshold,
		criticalThreshold: b.criticalThreshold,
		targetUtilization: b.targetUtilization,
	}, nil
}
