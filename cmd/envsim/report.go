package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/envelope"
)

var reportCmd = &cobra.Command{
	Use:   "report [recording.sqlite3]",
	Short: "Print the iterations stored in a recording.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		runID, _ := cmd.Flags().GetString("run")

		iterations, err := envelope.ReadIterations(cmd.Context(), reader, runID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tITERATION\tCHANGE\tTILES\tTILE SHAPE\tSECONDS")

		for _, e := range iterations {
			fmt.Fprintf(w, "%s\t%d\t%.3g\t%d\t%s\t%.3f\n",
				e.RunID, e.Iteration, e.Change, e.NumTiles, e.TileShape, e.Seconds)
		}

		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d iterations\n", len(iterations))

		return nil
	},
}

func init() {
	reportCmd.Flags().String("run", "", "only show one run")

	rootCmd.AddCommand(reportCmd)
}
