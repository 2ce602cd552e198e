package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/pipeline"
)

var (
	csvCombine bool
	csvBaseURL string
)

// CSVCmd processes a CSV export with preview URLs.
var CSVCmd = &cobra.Command{
	Use:   "csv <path>",
	Short: "Process a CSV export with preview URLs",
	Long: `Read a CSV export carrying FILENAME, FILEENTRYID and PREVIEW_URL
columns, resolve each preview URL against --base-url, and download every
entry. The extracted URL listing is persisted under <output-dir>/urls/.`,
	Args: cobra.ExactArgs(1),
	RunE: runCSV,
}

func init() {
	CSVCmd.Flags().BoolVar(&csvCombine, "combine", false, "Assemble all downloads into one multi-page PDF")
	CSVCmd.Flags().StringVar(&csvBaseURL, "base-url", "", "Base URL for resolving relative preview URLs")
}

func runCSV(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	cfg.BaseURL = csvBaseURL

	return runPipeline(cmd.Context(), cfg, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.ProcessCSV(ctx, args[0], csvCombine)
	})
}
