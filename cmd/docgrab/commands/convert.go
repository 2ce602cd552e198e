package commands

import (
	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/assembler"
)

var (
	convertOutDir    string
	convertRecursive bool
	convertCombine   bool
)

// ConvertCmd converts already-downloaded images without fetching.
var ConvertCmd = &cobra.Command{
	Use:   "convert <dir>",
	Short: "Convert images in a directory to PDFs",
	Long: `Convert every supported image under a directory to PDF, either one
PDF per image or one combined PDF for the whole directory. Unreadable or
unsupported files are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	ConvertCmd.Flags().StringVar(&convertOutDir, "to", "", "Output directory (default: <dir>_pdfs)")
	ConvertCmd.Flags().BoolVarP(&convertRecursive, "recursive", "r", false, "Descend into subdirectories")
	ConvertCmd.Flags().BoolVar(&convertCombine, "combine", false, "Assemble all images into one multi-page PDF")
}

func runConvert(cmd *cobra.Command, args []string) error {
	inDir := args[0]
	outDir := convertOutDir
	if outDir == "" {
		outDir = inDir + "_pdfs"
	}

	cfg := assembler.DefaultConfig()
	cfg.DPI = dpi
	cfg.MaxWorkers = workers

	asm := assembler.New(cfg)
	defer asm.Close()

	return asm.ConvertDirectory(cmd.Context(), inDir, outDir, convertRecursive, convertCombine, batchSize)
}
