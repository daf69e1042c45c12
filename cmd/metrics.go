package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-pantry/manifest"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "metrics <metrics.json>",
		Short:   "Print training metrics",
		Example: `  pantry metrics results/metrics.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics, err := manifest.LoadMetrics(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range metrics {
				fmt.Fprintf(tw, "%s\t%.4f\n", m.Name, m.Value)
			}
			return tw.Flush()
		},
	}
}
