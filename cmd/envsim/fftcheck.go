package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/simulation"
)

const roundTripTolerance = 1e-9

var fftCheckCmd = &cobra.Command{
	Use:   "fft-check",
	Short: "Check that a forward and inverse transform restore a field.",
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

		source, err := gaussianSource(domain, 1, 0.2)
		if err != nil {
			return err
		}

		engine := sim.FFTEngine()
		ctx := cmd.Context()

		spec, err := engine.Forward(ctx, source)
		if err != nil {
			return err
		}
		forward := engine.LastMethod()

		back, err := engine.Inverse(ctx, spec)
		if err != nil {
			return err
		}

		restored, err := field.Materialize(back)
		if err != nil {
			return err
		}

		rel := field.DiffNorm(restored.Data(), source.Data()) /
			field.Norm(source.Data())

		fmt.Fprintf(cmd.OutOrStdout(),
			"%s transform of %s: forward %s, inverse %s, relative error %.3g\n",
			engine.Normalization(), domain, forward, engine.LastMethod(), rel)

		if engine.Normalization() == fft.Orthonormal &&
			!(rel < roundTripTolerance) {
			return &errs.NumericalError{
				Op:     "fft-check",
				Reason: fmt.Sprintf("round trip error %.3g exceeds %g",
					rel, roundTripTolerance),
			}
		}

		return nil
	},
}

func init() {
	fftCheckCmd.Flags().String("dims", "8,8,8,2,2,2,4", "extents of the seven axes")

	rootCmd.AddCommand(fftCheckCmd)
}
