// Package budget watches device memory and decides whether a request fits in
// the fraction of memory the solver is allowed to use.
package budget

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/errs"
)

// Budget is a snapshot of device memory.
type Budget struct {
	Free       uint64  `json:"free"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	UsageRatio float64 `json:"usage_ratio"`
}

// Usable returns the bytes that tiles or windows may consume.
func (b Budget) Usable(targetUtilization float64) uint64 {
	return uint64(math.Floor(float64(b.Free) * targetUtilization))
}

// Monitor queries backend memory and enforces the usage thresholds.
type Monitor struct {
	querier  device.MemoryQuerier
	logger   *zap.Logger
	override *device.MemoryInfo

	warningThreshold  float64
	criticalThreshold float64
	targetUtilization float64
}

// WarningThreshold returns the usage ratio above which Check logs a warning.
func (m *Monitor) WarningThreshold() float64 {
	return m.warningThreshold
}

// CriticalThreshold returns the usage ratio above which Check fails.
func (m *Monitor) CriticalThreshold() float64 {
	return m.criticalThreshold
}

// TargetUtilization returns the fraction of free memory that requests may
// consume.
func (m *Monitor) TargetUtilization() float64 {
	return m.targetUtilization
}

func (m *Monitor) query() (device.MemoryInfo, error) {
	if m.override != nil {
		return *m.override, nil
	}

	if m.querier == nil {
		return device.MemoryInfo{}, &errs.ResourceError{
			Op:  "query memory",
			Err: fmt.Errorf("no memory backend and no override"),
		}
	}

	info, err := m.querier.QueryMemory()
	if err != nil {
		if errs.IsResource(err) {
			return device.MemoryInfo{}, err
		}

		return device.MemoryInfo{}, &errs.ResourceError{Op: "query memory", Err: err}
	}

	return info, nil
}

// Snapshot returns the current budget without enforcing any threshold.
func (m *Monitor) Snapshot() (Budget, error) {
	info, err := m.query()
	if err != nil {
		return Budget{}, err
	}

	b := Budget{
		Free:  info.Free,
		Total: info.Total,
	}

	if info.Total > info.Free {
		b.Used = info.Total - info.Free
	}

	if info.Total > 0 {
		b.UsageRatio = float64(b.Used) / float64(info.Total)
	}

	return b, nil
}

// Check returns the current budget. It fails if the usage ratio is above the
// critical threshold and logs if it is above the warning threshold.
func (m *Monitor) Check() (Budget, error) {
	b, err := m.Snapshot()
	if err != nil {
		return b, err
	}

	if b.UsageRatio > m.criticalThreshold {
		return b, &errs.ResourceError{
			Op:             "check memory",
			AvailableBytes: b.Free,
			Err: fmt.Errorf("usage ratio %.3f exceeds critical threshold %.3f",
				b.UsageRatio, m.criticalThreshold),
		}
	}

	if b.UsageRatio > m.warningThreshold {
		m.logger.Warn("memory usage above warning threshold",
			zap.Float64("usage_ratio", b.UsageRatio),
			zap.Float64("warning_threshold", m.warningThreshold),
			zap.Uint64("free", b.Free),
			zap.Uint64("total", b.Total))
	}

	return b, nil
}

// UsableBytes returns free memory scaled by the target utilization.
func (m *Monitor) UsableBytes() (uint64, error) {
	b, err := m.Snapshot()
	if err != nil {
		return 0, err
	}

	return b.Usable(m.targetUtilization), nil
}

// Fits tells if requiredBytes fits within the target share of free memory.
// It does not allocate anything.
func (m *Monitor) Fits(requiredBytes uint64) (bool, error) {
	usable, err := m.UsableBytes()
	if err != nil {
		return false, err
	}

	return requiredBytes <= usable, nil
}

// Approve fails with a ResourceError if an allocation of requiredBytes does
// not fit, or would push the usage ratio past the critical threshold.
func (m *Monitor) Approve(requiredBytes uint64, shape []int) error {
	b, err := m.Snapshot()
	if err != nil {
		return err
	}

	usable := b.Usable(m.targetUtilization)
	after := float64(b.Used+requiredBytes) / float64(b.Total)

	if requiredBytes > usable || b.Total == 0 || after > m.criticalThreshold {
		return &errs.ResourceError{
			Op:             "approve allocation",
			RequiredBytes:  requiredBytes,
			AvailableBytes: usable,
			Shape:          shape,
		}
	}

	return nil
}

// Reclaim asks the backend to return pooled memory.
func (m *Monitor) Reclaim() error {
	if m.querier == nil {
		return nil
	}

	if err := m.querier.ReleasePools(); err != nil {
		return &errs.ResourceError{Op: "release pools", Err: err}
	}

	return nil
}
