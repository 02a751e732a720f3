package simulation

import (
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
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

// SimulatedGPUName is the name of the GPU registered when the configuration
// gives it memory.
const SimulatedGPUName = "SimGPU"

// Builder can be used to build a simulation.
type Builder struct {
	cfg     *config.Config
	runID   string
	backend device.Backend
	logger  *zap.Logger
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{}
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithRunID sets the run identifier. A random one is used otherwise.
func (b Builder) WithRunID(id string) Builder {
	b.runID = id
	return b
}

// WithBackend uses the given backend instead of selecting one by policy.
func (b Builder) WithBackend(backend device.Backend) Builder {
	b.backend = backend
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// Build wires the components of a solve together.
func (b Builder) Build() (*Simulation, error) {
	cfg := b.cfg
	if cfg == nil {
		cfg = config.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:     b.runID,
		cfg:    cfg,
		logger: b.logger,
		clock:  hooking.NewWallClock(),
	}

	if s.id == "" {
		s.id = xid.New().String()
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	steps := []func(b Builder) error{
		s.selectBackend,
		s.buildBudget,
		s.buildSolver,
		s.buildFFT,
		s.buildRecording,
		s.buildMonitor,
		s.buildLoop,
	}

	for _, step := range steps {
		if err := step(b); err != nil {
			_ = s.Terminate()
			return nil, err
		}
	}

	atexit.Register(func() { _ = s.Terminate() })

	s.logger.Info("simulation built",
		zap.String("run_id", s.id),
		zap.String("backend", s.backend.Name()),
		zap.Bool("recording", s.recorder != nil),
		zap.Bool("monitoring", s.monitor != nil))

	return s, nil
}

func (s *Simulation) selectBackend(b Builder) error {
	if b.backend != nil {
		s.backend = b.backend
		return nil
	}

	policy, err := s.cfg.DevicePolicy()
	if err != nil {
		return err
	}

	registry := device.NewRegistry()
	registry.Register(device.NewCPUBackend())

	if s.cfg.Device.GPUMemory > 0 {
		registry.Register(
			device.NewSimulatedGPU(SimulatedGPUName, s.cfg.Device.GPUMemory))
	}

	s.backend, err = registry.Select(policy)

	return err
}

func (s *Simulation) buildBudget(_ Builder) error {
	c := s.cfg.Budget

	mb := budget.MakeBuilder().
		WithBackend(s.backend).
		WithLogger(s.logger.Named("budget")).
		WithWarningThreshold(c.WarningThreshold).
		WithCriticalThreshold(c.CriticalThreshold).
		WithTargetUtilization(c.TargetUtilization)
	if c.OverrideTotal > 0 {
		mb = mb.WithOverride(c.OverrideFree, c.OverrideTotal)
	}

	var err error

	s.budget, err = mb.Build()
	if err != nil {
		return err
	}

	s.planner, err = tiling.MakePlannerBuilder().
		WithBudget(s.budget).
		WithLogger(s.logger.Named("planner")).
		WithOverheadFactor(s.cfg.Tiling.OverheadFactor).
		WithTileOverride(s.cfg.Tiling.TileSize).
		Build()

	return err
}

func (s *Simulation) buildSolver(_ Builder) error {
	c := s.cfg.Solver

	var err error

	s.solver, err = solver.MakeBuilder().
		WithCoefficients(c.Coefficients).
		WithLogger(s.logger.Named("solver")).
		WithDirectLimit(c.DirectLimit).
		WithKrylov(c.KrylovTol, c.KrylovMaxIter).
		WithRelaxation(c.Omega, c.MaxSweeps, c.SweepTol).
		Build()
	if err != nil {
		return err
	}

	s.solverBusy = hooking.NewBusyTimeTracer(
		s.clock, hooking.FilterKind(solver.TaskKind))
	s.solver.AcceptHook(s.solverBusy)

	s.scheduler, err = scheduling.MakeBuilder().
		WithNumStreams(s.cfg.Scheduler.NumStreams).
		WithSynchronizer(s.backend).
		WithLogger(s.logger.Named("scheduler")).
		Build()

	return err
}

func (s *Simulation) buildFFT(_ Builder) error {
	c := s.cfg.FFT

	norm, err := s.cfg.FFTNormalization()
	if err != nil {
		return err
	}

	strategy, err := s.cfg.FFTStrategy()
	if err != nil {
		return err
	}

	fb := fft.MakeBuilder().
		WithBackend(s.backend).
		WithBudget(s.budget).
		WithLogger(s.logger.Named("fft")).
		WithNormalization(norm).
		WithStrategy(strategy).
		WithWindowEdge(c.WindowEdge)
	if c.Adaptive {
		fb = fb.WithAdaptiveWindows()
	}

	if c.SwapDir != "" {
		s.swap, err = field.OpenSwapStore(c.SwapDir)
		if err != nil {
			return err
		}

		fb = fb.WithSwapStore(s.swap)
	}

	s.fft, err = fb.Build()

	return err
}

func (s *Simulation) buildRecording(_ Builder) error {
	if !s.cfg.Recording.Enabled {
		return nil
	}

	path := s.cfg.Recording.Path
	if path == "" {
		path = "envsim_" + s.id
	}

	s.recorder = datarecording.New(path)

	if s.cfg.Recording.TraceTasks {
		s.tracer = hooking.NewDBTracer(
			s.clock, datarecording.NewTaskWriter(s.recorder))
		s.solver.AcceptHook(s.tracer)
	}

	return nil
}

func (s *Simulation) buildMonitor(_ Builder) error {
	if !s.cfg.Monitoring.Enabled {
		return nil
	}

	s.monitor = monitoring.NewMonitor().
		WithPortNumber(s.cfg.Monitoring.Port).
		WithLogger(s.logger.Named("monitor"))
	s.monitor.RegisterBudget(s.budget)
	s.monitor.RegisterStatus("simulation", func() any {
		stats := s.Stats()
		return &stats
	})

	return nil
}

func (s *Simulation) buildLoop(_ Builder) error {
	c := s.cfg.Loop

	lb := envelope.MakeBuilder().
		WithRunID(s.id).
		WithPlanner(s.planner).
		WithScheduler(s.scheduler).
		WithSolver(s.solver).
		WithMonitor(s.budget).
		WithFFTEngine(s.fft).
		WithLogger(s.logger.Named("loop")).
		WithOverlap(s.cfg.Tiling.Overlap).
		WithMaxIterations(c.MaxIterations).
		WithTolerance(c.Tolerance).
		WithBatchSize(s.cfg.Scheduler.BatchSize).
		WithQuenchSigma(c.QuenchSigma).
		WithSpectralSmoothing(c.Smoothing)
	if s.recorder != nil {
		lb = lb.WithRecorder(s.recorder)
	}

	if s.monitor != nil {
		lb = lb.WithProgressTracker(s.monitor)
	}

	var err error

	s.loop, err = lb.Build()
	if err != nil {
		return err
	}

	s.iterationTime = hooking.NewAverageTimeTracer(
		s.clock, hooking.FilterKind(envelope.IterationKind))
	s.loop.AcceptHook(s.iterationTime)

	if s.tracer != nil {
		s.loop.AcceptHook(s.tracer)
	}

	if s.monitor != nil {
		s.monitor.RegisterStatus("loop", func() any {
			status := s.loop.Status()
			return &status
		})

		s.monitorURL, err = s.monitor.StartServer()
		if err != nil {
			return err
		}
	}

	return nil
}
