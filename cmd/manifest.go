package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-pantry/logging"
	"github.com/nvr-ai/go-pantry/manifest"
)

func newManifestCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Dataset manifest tools",
	}
	cmd.AddCommand(newManifestMergeCmd(root))
	return cmd
}

func newManifestMergeCmd(root *rootOptions) *cobra.Command {
	var testDataset string

	cmd := &cobra.Command{
		Use:   "merge <datasets-dir>",
		Short: "Unify per-dataset manifests into one data.yaml",
		Long: `Reads the data.yaml of every dataset directory under <datasets-dir> and writes
<datasets-dir>/data.yaml with the classes shared by all of them, the train and
validation image directories of every dataset and the test directory of the
dataset named by --test-dataset.`,
		Example: `  pantry manifest merge datasets --test-dataset groceries`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			logger, closeLog, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			path, m, err := manifest.Merge(args[0], testDataset, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s\n", path)
			fmt.Fprintf(out, "%d classes: %s\n", m.NC, strings.Join(m.Names, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&testDataset, "test-dataset", "", "Dataset whose test split is used")

	return cmd
}
