package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

// CheckCmd probes URLs for image content without downloading.
var CheckCmd = &cobra.Command{
	Use:   "check <url>...",
	Short: "Probe URLs for image content without downloading",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	// Check reports the content type instead of enforcing a policy on
	// it; strictness only applies to downloads.
	cfg := fetcher.DefaultConfig(outputDir)
	cfg.Timeout = timeout

	f, err := fetcher.New(cfg)
	if err != nil {
		return err
	}

	bad := 0
	for _, url := range args {
		ok, contentType, err := f.Check(cmd.Context(), url)
		switch {
		case err != nil:
			bad++
			fmt.Printf("ERROR  %s (%v)\n", url, err)
		case ok:
			fmt.Printf("OK     %s (%s)\n", url, contentType)
		default:
			bad++
			fmt.Printf("SKIP   %s (unrecognized content type %q)\n", url, contentType)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d URLs failed the check", bad, len(args))
	}
	return nil
}
