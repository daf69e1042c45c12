package cmd

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-pantry/annotator"
	"github.com/nvr-ai/go-pantry/logging"
	"github.com/nvr-ai/go-pantry/util"
)

func newDetectCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect items in a single image",
		Long: `Runs the model on one image, prints the detections that pass the confidence
threshold and writes an annotated PNG.`,
		Example: `  pantry detect shelf.jpg
  pantry detect shelf.jpg --output results/shelf-annotated.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.Logging.Console = false

			logger, closeLog, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", args[0])
			}
			frame, err := util.ImageFile{Path: args[0], Data: data, Frame: -1}.Decode()
			if err != nil {
				return err
			}

			det, cleanup, err := loadDetector(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ann, err := annotator.New(annotator.DefaultFontSize)
			if err != nil {
				return err
			}

			detections, err := det.Infer(cmd.Context(), frame)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range detections {
				fmt.Fprintf(out, "%s\t[%d,%d %d,%d]\n", d.Text(), d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
			}
			fmt.Fprintf(out, "%d detection(s)\n", len(detections))

			if output == "" {
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				output = filepath.Join("results", base+"-annotated.png")
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", filepath.Dir(output))
			}
			f, err := os.Create(output)
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", output)
			}
			defer f.Close()
			if err := png.Encode(f, ann.Annotate(frame, detections)); err != nil {
				return errors.Wrapf(err, "failed to write %s", output)
			}
			fmt.Fprintf(out, "annotated image written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Annotated PNG path (default results/<name>-annotated.png)")

	return cmd
}
