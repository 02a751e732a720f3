package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/envelope/simulation"
	"github.com/sarchlab/envelope/tiling"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the tile plan the memory budget allows for a domain.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dimsFlag, _ := cmd.Flags().GetString("dims")
		domain, err := parseDims(dimsFlag)
		if err != nil {
			return err
		}

		cfg.Recording.Enabled = false
		cfg.Monitoring.Enabled = false

		sim, err := simulation.MakeBuilder().
			WithConfig(cfg).
			WithLogger(logger).
			Build()
		if err != nil {
			return err
		}
		defer sim.Terminate()

		b, err := sim.Budget().Snapshot()
		if err != nil {
			return err
		}

		plan, err := sim.Planner().Plan(domain)
		if err != nil {
			return err
		}

		overlap := tiling.UniformOverlap(cfg.Tiling.Overlap)
		for a, t := range plan.TileShape {
			overlap[a] = max(min(overlap[a], t-1), 0)
		}

		it, err := tiling.NewIterator(domain, plan.TileShape, overlap)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend    %s\n", sim.Backend().Name())
		fmt.Fprintf(out, "memory     %d free of %d bytes (%.1f%% used)\n",
			b.Free, b.Total, 100*b.UsageRatio)
		fmt.Fprintf(out, "usable     %d bytes\n", plan.Usable)
		fmt.Fprintf(out, "domain     %s (%d bytes)\n", domain, domain.Bytes())
		fmt.Fprintf(out, "tile       %s after %d reductions\n",
			plan.TileShape, plan.Reductions)
		fmt.Fprintf(out, "estimate   %d bytes per tile\n", plan.Estimate)
		fmt.Fprintf(out, "tiles      %d with overlap %v\n",
			it.Count(), overlap)

		return nil
	},
}

func init() {
	planCmd.Flags().String("dims", "16,16,16,4,4,4,8", "extents of the seven axes")

	rootCmd.AddCommand(planCmd)
}
