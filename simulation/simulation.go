// Package simulation wires a backend, memory budget, planner, solver, FFT
// engine, recorder and monitor into a ready-to-run envelope solve.
package simulation

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/config"
	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/envelope"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/hooking"
	"github.com/sarchlab/envelope/monitoring"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
	"github.com/sarchlab/envelope/tiling"
)

// A Simulation owns every component of one solve.
type Simulation struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger
	clock  *hooking.WallClock

	backend   device.Backend
	budget    *budget.Monitor
	planner   *tiling.Planner
	scheduler *scheduling.StreamScheduler
	solver    *solver.TileSolver
	fft       *fft.Engine
	swap      *field.SwapStore
	loop      *envelope.Loop

	recorder      datarecording.DataRecorder
	tracer        *hooking.DBTracer
	solverBusy    *hooking.BusyTimeTracer
	iterationTime *hooking.TotalAvgTimeTracer

	monitor    *monitoring.Monitor
	monitorURL string

	terminateOnce sync.Once
	terminateErr  error
}

// Stats summarizes where the time of a simulation went.
type Stats struct {
	ElapsedSeconds          float64 `json:"elapsed_seconds"`
	SolverBusySeconds       float64 `json:"solver_busy_seconds"`
	Iterations              uint64  `json:"iterations"`
	AverageIterationSeconds float64 `json:"average_iteration_seconds"`
}

// ID returns the run identifier.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// Backend returns the selected device backend.
func (s *Simulation) Backend() device.Backend {
	return s.backend
}

// Budget returns the memory monitor.
func (s *Simulation) Budget() *budget.Monitor {
	return s.budget
}

// Planner returns the tile planner.
func (s *Simulation) Planner() *tiling.Planner {
	return s.planner
}

// Solver returns the tile solver.
func (s *Simulation) Solver() *solver.TileSolver {
	return s.solver
}

// FFTEngine returns the spectral engine.
func (s *Simulation) FFTEngine() *fft.Engine {
	return s.fft
}

// Loop returns the outer solve loop.
func (s *Simulation) Loop() *envelope.Loop {
	return s.loop
}

// GetDataRecorder returns the data recorder, or nil when recording is off.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.recorder
}

// GetMonitor returns the monitor, or nil when monitoring is off.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring page.
func (s *Simulation) MonitorURL() string {
	return s.monitorURL
}

// Stats returns the timing collected so far.
func (s *Simulation) Stats() Stats {
	stats := Stats{ElapsedSeconds: s.clock.Now()}

	if s.solverBusy != nil {
		stats.SolverBusySeconds = s.solverBusy.BusyTime()
	}

	if s.iterationTime != nil {
		stats.Iterations = s.iterationTime.TotalCount()
		stats.AverageIterationSeconds = s.iterationTime.AverageTime()
	}

	return stats
}

// Terminate ends traced tasks, flushes and closes the recorder, removes the
// swap store and stops the monitor. Calling it again returns the first
// result.
func (s *Simulation) Terminate() error {
	s.terminateOnce.Do(func() {
		var all []error

		if s.tracer != nil {
			s.tracer.Terminate()
		}

		if s.recorder != nil {
			all = append(all, s.recorder.Close())
		}

		if s.swap != nil {
			all = append(all, s.swap.Close())
		}

		if s.monitor != nil {
			all = append(all, s.monitor.Close())
		}

		s.terminateErr = errors.Join(all...)

		s.logger.Debug("simulation terminated",
			zap.String("run_id", s.id),
			zap.Error(s.terminateErr))
	})

	return s.terminateErr
}
