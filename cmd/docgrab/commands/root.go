// Package commands holds the docgrab CLI surface. Each subcommand maps
// onto one pipeline operation; flags shared by every subcommand live on
// the root command.
package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/docgrab/docgrab/pkg/journal"
	"github.com/docgrab/docgrab/pkg/logging"
	"github.com/docgrab/docgrab/pkg/metrics"
	"github.com/docgrab/docgrab/pkg/pipeline"
)

var (
	outputDir   string
	concurrency int
	timeout     time.Duration
	batchSize   int
	dpi         int
	workers     int
	keepImages  bool
	strictTypes bool
	retries     int
	redisAddr   string
	metricsAddr string
	logLevel    string
	logFile     string
	pretty      bool
)

// RootCmd is the docgrab entrypoint.
var RootCmd = &cobra.Command{
	Use:   "docgrab",
	Short: "Bulk download images and assemble them into PDFs",
	Long: `docgrab downloads image resources over HTTP in bounded concurrent
batches and assembles the results into PDF documents.

Available commands:
  single  - Download one URL and convert it to a PDF
  multi   - Download several URLs, one PDF each or one combined PDF
  file    - Process a text file with one URL per line
  csv     - Process a CSV export with preview URLs
  pages   - Download multi-page documents by probing page indices
  convert - Convert already-downloaded images in a directory
  check   - Probe URLs for image content without downloading

Examples:
  docgrab single https://example.com/scan.png
  docgrab file urls.txt --combine
  docgrab csv export.csv --base-url https://archive.example.com
  docgrab pages https://example.com/doc?page=1 --max-pages 30`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(logLevel),
			Pretty: pretty,
			File:   logFile,
		})
		if metricsAddr != "" {
			go func() {
				if err := http.ListenAndServe(metricsAddr, metrics.Handler()); err != nil {
					log.Warn().Err(err).Str("addr", metricsAddr).Msg("Metrics endpoint stopped")
				}
			}()
		}
	},
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&outputDir, "output-dir", "o", "output", "Output directory root")
	pf.IntVarP(&concurrency, "concurrency", "c", 20, "Maximum concurrent downloads")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")
	pf.IntVar(&batchSize, "batch-size", 100, "Items per download batch")
	pf.IntVar(&dpi, "dpi", 200, "PDF render resolution")
	pf.IntVar(&workers, "workers", 8, "Concurrent PDF encode workers")
	pf.BoolVar(&keepImages, "keep-images", false, "Keep downloaded images after conversion")
	pf.BoolVar(&strictTypes, "strict-content-type", false, "Reject responses with unrecognized content types")
	pf.IntVar(&retries, "retries", 1, "Total fetch attempts per item (1 disables retries)")
	pf.StringVar(&redisAddr, "redis", "", "Redis address for the resume journal (empty disables it)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on during the run (empty disables it)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "Duplicate logs into this file")
	pf.BoolVar(&pretty, "pretty", false, "Human-readable console logging")

	RootCmd.AddCommand(SingleCmd)
	RootCmd.AddCommand(MultiCmd)
	RootCmd.AddCommand(FileCmd)
	RootCmd.AddCommand(CSVCmd)
	RootCmd.AddCommand(PagesCmd)
	RootCmd.AddCommand(ConvertCmd)
	RootCmd.AddCommand(CheckCmd)
}

// Execute runs the CLI with a signal-cancelled context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// pipelineConfig assembles a pipeline configuration from the global
// flags. The journal is attached only when a Redis address is given.
func pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig(outputDir)
	cfg.Concurrency = concurrency
	cfg.Timeout = timeout
	cfg.BatchSize = batchSize
	cfg.DPI = dpi
	cfg.Workers = workers
	cfg.KeepImages = keepImages
	cfg.StrictContentType = strictTypes
	cfg.RetryAttempts = retries

	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		j, err := journal.New(client, journal.DefaultConfig())
		if err != nil {
			log.Warn().Err(err).Str("addr", redisAddr).Msg("Journal unavailable, continuing without it")
		} else {
			cfg.Journal = j
		}
	}
	return cfg
}

// runPipeline constructs a pipeline from cfg, runs fn, and always closes
// the pipeline so the error report gets written.
func runPipeline(ctx context.Context, cfg pipeline.Config, fn func(context.Context, *pipeline.Pipeline) error) error {
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	runErr := fn(ctx, p)
	failed := p.Ledger().Len()
	if closeErr := p.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("Could not write error report")
	}
	if failed > 0 {
		log.Warn().Int("failures", failed).Msg("Run finished with failures, see error report")
	}
	return runErr
}
