package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/pipeline"
)

var fileCombine bool

// FileCmd processes a text file with one URL per line.
var FileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Process a text file with one URL per line",
	Long: `Read a URL listing (one URL per line, blank lines and # comments
ignored) and download every entry in bounded concurrent batches.`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	FileCmd.Flags().BoolVar(&fileCombine, "combine", false, "Assemble all downloads into one multi-page PDF")
}

func runFile(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd.Context(), pipelineConfig(), func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.ProcessFile(ctx, args[0], fileCombine)
	})
}
