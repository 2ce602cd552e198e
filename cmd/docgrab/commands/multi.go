package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/batch"
	"github.com/docgrab/docgrab/pkg/pipeline"
)

var multiCombine bool

// MultiCmd downloads several URLs given as arguments.
var MultiCmd = &cobra.Command{
	Use:   "multi <url>...",
	Short: "Download several URLs, one PDF each or one combined PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMulti,
}

func init() {
	MultiCmd.Flags().BoolVar(&multiCombine, "combine", false, "Assemble all downloads into one multi-page PDF")
}

func runMulti(cmd *cobra.Command, args []string) error {
	items := make([]batch.Item, 0, len(args))
	for _, url := range args {
		items = append(items, batch.Item{URL: url})
	}
	return runPipeline(cmd.Context(), pipelineConfig(), func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.ProcessURLs(ctx, items, multiCombine)
	})
}
