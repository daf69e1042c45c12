package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-pantry/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// load reads the config file, applies PANTRY_* overrides and validates the
// result.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pantry",
		Short: "Count pantry items on camera with a YOLO model",
		Long: `Pantry watches a camera, detects grocery items with an ONNX YOLO model and
builds an editable inventory list from captured frames.

The list can be exported to the clipboard, archived in SQLite and followed
live over a websocket feed.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newDetectCmd(opts))
	cmd.AddCommand(newManifestCmd(opts))
	cmd.AddCommand(newMetricsCmd())

	return cmd
}
