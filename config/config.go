// Package config loads the settings of an envelope solve from YAML, a .env
// file and ENVSIM_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/envelope/budget"
	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/envelope"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/solver"
)

// Config holds all settings of a solve.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Budget     BudgetConfig     `yaml:"budget"`
	Tiling     TilingConfig     `yaml:"tiling"`
	Solver     SolverConfig     `yaml:"solver"`
	FFT        FFTConfig        `yaml:"fft"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Loop       LoopConfig       `yaml:"loop"`
	Recording  RecordingConfig  `yaml:"recording"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// DeviceConfig selects the backend.
type DeviceConfig struct {
	Policy string `yaml:"policy"`

	// GPUMemory is the capacity in bytes of the simulated GPU. Zero
	// registers no GPU.
	GPUMemory uint64 `yaml:"gpu_memory"`
}

// BudgetConfig configures the memory monitor.
type BudgetConfig struct {
	WarningThreshold  float64 `yaml:"warning_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
	TargetUtilization float64 `yaml:"target_utilization"`

	// OverrideFree and OverrideTotal replace the device query when
	// OverrideTotal is non-zero.
	OverrideFree  uint64 `yaml:"override_free"`
	OverrideTotal uint64 `yaml:"override_total"`
}

// TilingConfig configures the planner and the overlap between tiles.
type TilingConfig struct {
	// TileSize forces a uniform tile. Zero lets the planner choose.
	TileSize       int     `yaml:"tile_size"`
	OverheadFactor float64 `yaml:"overhead_factor"`
	Overlap        int     `yaml:"overlap"`
}

// SolverConfig configures the tile solver.
type SolverConfig struct {
	Coefficients  solver.Coefficients `yaml:"coefficients"`
	DirectLimit   int                 `yaml:"direct_limit"`
	KrylovTol     float64             `yaml:"krylov_tol"`
	KrylovMaxIter int                 `yaml:"krylov_max_iter"`
	Omega         float64             `yaml:"omega"`
	MaxSweeps     int                 `yaml:"max_sweeps"`
	SweepTol      float64             `yaml:"sweep_tol"`
}

// FFTConfig configures the spectral engine.
type FFTConfig struct {
	Normalization string `yaml:"normalization"`
	Strategy      string `yaml:"strategy"`
	WindowEdge    int    `yaml:"window_edge"`
	Adaptive      bool   `yaml:"adaptive"`

	// SwapDir holds the swap database of streamed transforms. Empty keeps
	// every transform in memory.
	SwapDir string `yaml:"swap_dir"`
}

// SchedulerConfig configures the stream scheduler.
type SchedulerConfig struct {
	NumStreams int `yaml:"num_streams"`

	// BatchSize is the number of tiles dispatched at once. Zero dispatches
	// all tiles of an iteration together.
	BatchSize int `yaml:"batch_size"`
}

// LoopConfig configures the fixed-point iteration.
type LoopConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	QuenchSigma   float64 `yaml:"quench_sigma"`

	// Smoothing is the kept fraction of the spectrum applied to the initial
	// field. Zero disables smoothing.
	Smoothing float64 `yaml:"smoothing"`
}

// RecordingConfig configures the SQLite recorder.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	TraceTasks bool   `yaml:"trace_tasks"`
}

// MonitoringConfig configures the HTTP monitor.
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	Open    bool `yaml:"open"`
}

// Default returns the configuration used when nothing is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Policy: device.PolicyGPUPreferred.String(),
		},
		Budget: BudgetConfig{
			WarningThreshold:  budget.DefaultWarningThreshold,
			CriticalThreshold: budget.DefaultCriticalThreshold,
			TargetUtilization: budget.DefaultTargetUtilization,
		},
		Tiling: TilingConfig{
			OverheadFactor: 6,
			Overlap:        envelope.DefaultOverlap,
		},
		Solver: SolverConfig{
			Coefficients:  solver.DefaultCoefficients(),
			DirectLimit:   solver.DefaultDirectLimit,
			KrylovTol:     solver.DefaultKrylovTol,
			KrylovMaxIter: solver.DefaultKrylovMaxIter,
			Omega:         solver.DefaultOmega,
			MaxSweeps:     solver.DefaultMaxSweeps,
			SweepTol:      solver.DefaultSweepTol,
		},
		FFT: FFTConfig{
			Normalization: fft.Orthonormal.String(),
			Strategy:      "exact",
		},
		Scheduler: SchedulerConfig{
			NumStreams: scheduling.DefaultNumStreams,
		},
		Loop: LoopConfig{
			MaxIterations: envelope.DefaultMaxIterations,
			Tolerance:     envelope.DefaultTolerance,
			QuenchSigma:   envelope.DefaultQuenchSigma,
		},
	}
}

// Load reads the YAML file at path on top of the defaults and applies the
// environment overrides. An empty path skips the file. Variables in envFile
// apply only where the process environment does not set them; a missing
// envFile is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	env, err := environment(envFile)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Configf("config", "reading %s: %v", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err = dec.Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return errs.Configf("config", "parsing %s: %v", path, err)
	}

	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DevicePolicy returns the parsed execution policy.
func (c *Config) DevicePolicy() (device.Policy, error) {
	return device.ParsePolicy(c.Device.Policy)
}

// FFTNormalization returns the parsed normalization mode.
func (c *Config) FFTNormalization() (fft.Normalization, error) {
	return fft.ParseNormalization(c.FFT.Normalization)
}

// FFTStrategy returns the parsed transform strategy.
func (c *Config) FFTStrategy() (fft.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(c.FFT.Strategy)) {
	case "", "exact":
		return fft.StrategyExact, nil
	case "windowed":
		return fft.StrategyWindowed, nil
	default:
		return 0, errs.Configf("fft.strategy",
			"unknown strategy %q", c.FFT.Strategy)
	}
}

// Validate checks the settings that the builders cannot check on their own,
// and parses the textual ones.
func (c *Config) Validate() error {
	if _, err := c.DevicePolicy(); err != nil {
		return err
	}

	if _, err := c.FFTNormalization(); err != nil {
		return err
	}

	if _, err := c.FFTStrategy(); err != nil {
		return err
	}

	validators := []func() error{
		c.validateBudget,
		c.validateTiling,
		c.validateSolver,
		c.validateRun,
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateBudget() error {
	b := c.Budget

	if b.WarningThreshold <= 0 || b.WarningThreshold > 1 {
		return errs.Configf("budget.warning_threshold",
			"must be in (0, 1], got %g", b.WarningThreshold)
	}

	if b.CriticalThreshold < b.WarningThreshold || b.CriticalThreshold > 1 {
		return errs.Configf("budget.critical_threshold",
			"must be in [warning_threshold, 1], got %g", b.CriticalThreshold)
	}

	if b.TargetUtilization <= 0 || b.TargetUtilization > 1 {
		return errs.Configf("budget.target_utilization",
			"must be in (0, 1], got %g", b.TargetUtilization)
	}

	if b.OverrideTotal != 0 && b.OverrideFree > b.OverrideTotal {
		return errs.Configf("budget.override_free",
			"%d exceeds override_total %d", b.OverrideFree, b.OverrideTotal)
	}

	return nil
}

func (c *Config) validateTiling() error {
	t := c.Tiling

	if t.TileSize < 0 {
		return errs.Configf("tiling.tile_size",
			"must not be negative, got %d", t.TileSize)
	}

	if t.OverheadFactor < 1 {
		return errs.Configf("tiling.overhead_factor",
			"must be at least 1, got %g", t.OverheadFactor)
	}

	if t.Overlap < 0 {
		return errs.Configf("tiling.overlap",
			"must not be negative, got %d", t.Overlap)
	}

	if t.TileSize > 0 && t.Overlap >= t.TileSize {
		return errs.Configf("tiling.overlap",
			"%d must be smaller than tile_size %d", t.Overlap, t.TileSize)
	}

	return nil
}

func (c *Config) validateSolver() error {
	if err := c.Solver.Coefficients.Validate(); err != nil {
		return err
	}

	if c.Solver.DirectLimit < 1 {
		return errs.Configf("solver.direct_limit",
			"must be positive, got %d", c.Solver.DirectLimit)
	}

	return nil
}

func (c *Config) validateRun() error {
	if c.Scheduler.NumStreams < 1 {
		return errs.Configf("scheduler.num_streams",
			"must be positive, got %d", c.Scheduler.NumStreams)
	}

	if c.Scheduler.BatchSize < 0 {
		return errs.Configf("scheduler.batch_size",
			"must not be negative, got %d", c.Scheduler.BatchSize)
	}

	if c.Loop.MaxIterations < 1 {
		return errs.Configf("loop.max_iterations",
			"must be positive, got %d", c.Loop.MaxIterations)
	}

	if !(c.Loop.Tolerance > 0) {
		return errs.Configf("loop.tolerance",
			"must be positive, got %g", c.Loop.Tolerance)
	}

	if !(c.Loop.QuenchSigma > 0) {
		return errs.Configf("loop.quench_sigma",
			"must be positive, got %g", c.Loop.QuenchSigma)
	}

	if c.Loop.Smoothing < 0 || c.Loop.Smoothing > 1 {
		return errs.Configf("loop.smoothing",
			"must be in [0, 1], got %g", c.Loop.Smoothing)
	}

	port := c.Monitoring.Port
	if port != 0 && (port < 1000 || port > 65535) {
		return errs.Configf("monitoring.port",
			"must be 0 or in [1000, 65535], got %d", port)
	}

	return nil
}
