package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/pipeline"
)

var singleName string

// SingleCmd downloads one URL and converts it to a PDF.
var SingleCmd = &cobra.Command{
	Use:   "single <url>",
	Short: "Download one URL and convert it to a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runSingle,
}

func init() {
	SingleCmd.Flags().StringVar(&singleName, "name", "", "Output PDF filename (default: derived from the download)")
}

func runSingle(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd.Context(), pipelineConfig(), func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.ProcessSingle(ctx, args[0], singleName)
	})
}
