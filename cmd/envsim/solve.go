package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/envelope"
	"github.com/sarchlab/envelope/simulation"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the envelope equation for a synthetic Gaussian source.",
	RunE:  runSolve,
}

func init() {
	f := solveCmd.Flags()
	f.String("dims", "16,16,16,4,4,4,8", "extents of the seven axes")
	f.Float64("amplitude", 1, "peak amplitude of the source")
	f.Float64("sigma", 0.2, "width of the source relative to the domain")
	f.Int("max-iterations", 0, "iteration cap, overrides the configuration")
	f.Float64("tolerance", 0, "convergence tolerance, overrides the configuration")
	f.Int("tile", 0, "force a uniform tile size")
	f.Bool("record", false, "record iterations into an SQLite file")
	f.String("record-path", "", "recording file name without extension")
	f.Bool("trace", false, "record solver tasks as well")
	f.Bool("monitor", false, "serve the progress over HTTP")
	f.Int("monitor-port", 0, "port of the monitoring server")
	f.Bool("open-monitor", false, "open the monitoring page in a browser")
	f.Bool("quench", false, "report quench candidates of the solution")
	f.Bool("spectrum", false, "report the spectral energy of the solution")

	rootCmd.AddCommand(solveCmd)
}

// applySolveFlags copies the flags the user set into the configuration.
func applySolveFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	if f.Changed("max-iterations") {
		cfg.Loop.MaxIterations, _ = f.GetInt("max-iterations")
	}

	if f.Changed("tolerance") {
		cfg.Loop.Tolerance, _ = f.GetFloat64("tolerance")
	}

	if f.Changed("tile") {
		cfg.Tiling.TileSize, _ = f.GetInt("tile")
	}

	if record, _ := f.GetBool("record"); record {
		cfg.Recording.Enabled = true
	}

	if f.Changed("record-path") {
		cfg.Recording.Path, _ = f.GetString("record-path")
	}

	if trace, _ := f.GetBool("trace"); trace {
		cfg.Recording.TraceTasks = true
	}

	if open, _ := f.GetBool("open-monitor"); open {
		cfg.Monitoring.Open = true
	}

	if monitor, _ := f.GetBool("monitor"); monitor || cfg.Monitoring.Open {
		cfg.Monitoring.Enabled = true
	}

	if f.Changed("monitor-port") {
		cfg.Monitoring.Port, _ = f.GetInt("monitor-port")
	}
}

func runSolve(cmd *cobra.Command, _ []string) error {
	applySolveFlags(cmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	dimsFlag, _ := cmd.Flags().GetString("dims")
	domain, err := parseDims(dimsFlag)
	if err != nil {
		return err
	}

	amplitude, _ := cmd.Flags().GetFloat64("amplitude")
	sigma, _ := cmd.Flags().GetFloat64("sigma")

	source, err := gaussianSource(domain, amplitude, sigma)
	if err != nil {
		return err
	}

	sim, err := simulation.MakeBuilder().
		WithConfig(cfg).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer sim.Terminate()

	if cfg.Monitoring.Open && sim.MonitorURL() != "" {
		if err := browser.OpenURL(sim.MonitorURL()); err != nil {
			logger.Warn("cannot open browser", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := sim.Loop().SolveEnvelope(ctx, source, 0, 0)
	if err != nil {
		return err
	}

	printResult(cmd, sim, res)

	if quench, _ := cmd.Flags().GetBool("quench"); quench {
		report, err := sim.Loop().DetectQuenches(ctx, res.Field)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "quench candidates: %d in %d tiles\n",
			report.Count, report.TilesScanned)

		for _, e := range report.Events {
			fmt.Fprintf(cmd.OutOrStdout(), "  tile %d %s: %d points, peak %.4g at %v\n",
				e.TileID, e.Region, e.Count, e.Peak, e.PeakAt)
		}
	}

	if spectrum, _ := cmd.Flags().GetBool("spectrum"); spectrum {
		report, err := sim.Loop().SpectralEnergy(ctx, res.Field)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "spectral energy: %.6g (%s)\n", report.TotalEnergy, report.Method)
	}

	return sim.Terminate()
}

func printResult(
	cmd *cobra.Command,
	sim *simulation.Simulation,
	res envelope.Result,
) {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", sim.ID())
	fmt.Fprintf(cmd.OutOrStdout(), "tile shape %s, %d reductions\n",
		res.Plan.TileShape, res.Plan.Reductions)
	fmt.Fprintf(cmd.OutOrStdout(), "iterations %d, converged %t, residual %.3g\n",
		res.Iterations, res.Converged, res.Residual)

	methods := make([]string, 0, len(res.Methods))
	for m, n := range res.Methods {
		methods = append(methods, fmt.Sprintf("%s=%d", m, n))
	}
	sort.Strings(methods)

	fmt.Fprintf(cmd.OutOrStdout(), "tile solves: %s\n", strings.Join(methods, " "))

	stats := sim.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "elapsed %.3fs, solver busy %.3fs\n",
		stats.ElapsedSeconds, stats.SolverBusySeconds)

	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
}
