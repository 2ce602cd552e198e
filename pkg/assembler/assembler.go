// Package assembler converts downloaded raster images into single- or
// multi-page PDF documents. Encoding is delegated to pdfcpu; this package
// orchestrates validation, colorspace normalization, output layout and
// the bounded worker pool for blocking encode work.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

// Prometheus metrics for conversion operations.
var (
	convertTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_convert_total",
		Help: "Total image conversions by outcome",
	}, []string{"outcome"})

	convertDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docgrab_convert_duration_seconds",
		Help:    "Single-document conversion duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// ErrNoValidImages is returned when a conversion was asked for but none
// of the supplied inputs was a usable raster image. An empty PDF is never
// produced.
var ErrNoValidImages = errors.New("no valid images to convert")

// ErrClosed is returned for conversions submitted after Close.
var ErrClosed = errors.New("assembler is closed")

// Config holds assembler configuration.
type Config struct {
	// DPI is the render resolution for imported images.
	DPI int

	// MaxWorkers bounds concurrent encode jobs.
	MaxWorkers int
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		DPI:        200,
		MaxWorkers: 8,
	}
}

// Assembler converts images to PDFs. One assembler owns one worker pool;
// it must be closed after the last conversion, which drains pending work.
type Assembler struct {
	cfg    Config
	conf   *model.Configuration
	pool   *encodePool
	logger zerolog.Logger
}

// New creates an assembler.
func New(cfg Config) *Assembler {
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Assembler{
		cfg:    cfg,
		conf:   conf,
		pool:   newEncodePool(cfg.MaxWorkers),
		logger: log.With().Str("component", "assembler").Logger(),
	}
}

// Close drains pending encode work and releases the pool. Conversions
// submitted after Close fail with ErrClosed.
func (a *Assembler) Close() {
	a.pool.close()
}

// importSpec builds the pdfcpu import description for the configured DPI.
func (a *Assembler) importSpec() string {
	return fmt.Sprintf("dpi:%d", a.cfg.DPI)
}

// encode runs one pdfcpu import on a pool slot and waits for it.
func (a *Assembler) encode(ctx context.Context, imgPaths []string, outPath string) error {
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	imp, err := api.Import(a.importSpec(), types.POINTS)
	if err != nil {
		return fmt.Errorf("import spec: %w", err)
	}

	done := make(chan error, 1)
	if !a.pool.submit(func() {
		done <- api.ImportImagesFile(imgPaths, outPath, imp, a.conf)
	}) {
		return ErrClosed
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("encode pdf: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The encode keeps its slot until it finishes; the pool drain in
		// Close still accounts for it.
		return ctx.Err()
	}
}

// ConvertOne converts a single image into a single-page PDF at outPath.
// Re-running with unchanged input yields the same verdict.
func (a *Assembler) ConvertOne(ctx context.Context, imgPath, outPath string) error {
	start := time.Now()

	prepared, cleanup, err := prepareImage(imgPath)
	if err != nil {
		convertTotal.WithLabelValues("invalid").Inc()
		a.logger.Warn().Str("image", imgPath).Err(err).Msg("Skipping invalid image")
		return err
	}
	defer cleanup()

	if err := a.encode(ctx, []string{prepared}, outPath); err != nil {
		convertTotal.WithLabelValues("failure").Inc()
		return err
	}

	convertTotal.WithLabelValues("success").Inc()
	convertDurationSeconds.Observe(time.Since(start).Seconds())
	a.logger.Info().
		Str("image", imgPath).
		Str("pdf", outPath).
		Msg("Conversion complete")
	return nil
}

// ConvertMany combines the given images, in order, into one multi-page
// PDF: the first image is the base page, the rest append in sequence,
// written once. Invalid images are skipped with a log line; the call
// fails only when no image was usable.
func (a *Assembler) ConvertMany(ctx context.Context, imgPaths []string, outPath string) error {
	if len(imgPaths) == 0 {
		return ErrNoValidImages
	}

	start := time.Now()
	var prepared []string
	var cleanups []func()
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()

	for _, p := range imgPaths {
		usable, cleanup, err := prepareImage(p)
		if err != nil {
			convertTotal.WithLabelValues("invalid").Inc()
			a.logger.Warn().Str("image", p).Err(err).Msg("Skipping invalid image")
			continue
		}
		prepared = append(prepared, usable)
		cleanups = append(cleanups, cleanup)
	}

	if len(prepared) == 0 {
		return fmt.Errorf("%w (%d supplied)", ErrNoValidImages, len(imgPaths))
	}

	if err := a.encode(ctx, prepared, outPath); err != nil {
		convertTotal.WithLabelValues("failure").Inc()
		return err
	}

	convertTotal.WithLabelValues("success").Inc()
	convertDurationSeconds.Observe(time.Since(start).Seconds())
	a.logger.Info().
		Int("pages", len(prepared)).
		Int("supplied", len(imgPaths)).
		Str("pdf", outPath).
		Msg("Combined conversion complete")
	return nil
}

// ConvertBatch converts many images into independent single-page PDFs,
// one per input, mirroring each image's directory layout relative to
// inputRoot under outputRoot. Inputs are processed in fixed-size groups
// whose members convert concurrently on the worker pool.
//
// Partial success is success: callers treat a non-empty converted list as
// a passing run, because bulk jobs should not be voided by a minority of
// bad inputs.
func (a *Assembler) ConvertBatch(ctx context.Context, imgPaths []string, inputRoot, outputRoot string, batchSize int) (converted []string, failures []fetcher.Failure) {
	if len(imgPaths) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	start := time.Now()
	total := len(imgPaths)
	batchCount := (total + batchSize - 1) / batchSize
	a.logger.Info().
		Int("images", total).
		Int("batch_size", batchSize).
		Msg("Starting batch conversion")

	var mu sync.Mutex
	for i := 0; i < batchCount; i++ {
		lo := i * batchSize
		hi := min(lo+batchSize, total)

		var wg sync.WaitGroup
		batchOK := 0
		for _, imgPath := range imgPaths[lo:hi] {
			outPath := mirrorPath(imgPath, inputRoot, outputRoot)

			wg.Add(1)
			go func(imgPath, outPath string) {
				defer wg.Done()
				err := a.ConvertOne(ctx, imgPath, outPath)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, conversionFailure(imgPath, err))
					return
				}
				converted = append(converted, outPath)
				batchOK++
			}(imgPath, outPath)
		}
		wg.Wait()

		a.logger.Info().
			Int("batch", i+1).
			Int("batches", batchCount).
			Float64("success_rate_pct", float64(batchOK)/float64(hi-lo)*100).
			Msg("Conversion batch complete")
	}

	elapsed := time.Since(start)
	a.logger.Info().
		Int("converted", len(converted)).
		Int("failed", len(failures)).
		Int("total", total).
		Dur("elapsed", elapsed).
		Dur("avg_per_image", elapsed/time.Duration(total)).
		Msg("Batch conversion complete")
	return converted, failures
}

// ConvertDirectory converts every supported image found under inputDir,
// either combined into one PDF named after the directory or individually
// via ConvertBatch.
func (a *Assembler) ConvertDirectory(ctx context.Context, inputDir, outputDir string, recursive, combine bool, batchSize int) error {
	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("input directory %s does not exist", inputDir)
	}
	if outputDir == "" {
		outputDir = inputDir
	}

	imgPaths, err := findImages(inputDir, recursive)
	if err != nil {
		return fmt.Errorf("scan directory: %w", err)
	}
	if len(imgPaths) == 0 {
		return fmt.Errorf("no supported images under %s", inputDir)
	}
	a.logger.Info().Int("images", len(imgPaths)).Str("dir", inputDir).Msg("Found images for conversion")

	if combine {
		name := filepath.Base(filepath.Clean(inputDir)) + "_combined.pdf"
		return a.ConvertMany(ctx, imgPaths, filepath.Join(outputDir, name))
	}

	converted, _ := a.ConvertBatch(ctx, imgPaths, inputDir, outputDir, batchSize)
	if len(converted) == 0 {
		return ErrNoValidImages
	}
	return nil
}

// mirrorPath maps an input image path to its output PDF path, preserving
// the directory structure relative to inputRoot. Inputs outside inputRoot
// fall back to their basename.
func mirrorPath(imgPath, inputRoot, outputRoot string) string {
	rel, err := filepath.Rel(inputRoot, imgPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(imgPath)
	}
	ext := filepath.Ext(rel)
	return filepath.Join(outputRoot, strings.TrimSuffix(rel, ext)+".pdf")
}

// findImages lists supported images in dir, optionally recursing.
func findImages(dir string, recursive bool) ([]string, error) {
	var paths []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && SupportedExt(path) {
				paths = append(paths, path)
			}
			return nil
		})
		return paths, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && SupportedExt(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// conversionFailure wraps a conversion error as a ledger record.
func conversionFailure(imgPath string, err error) fetcher.Failure {
	class := fetcher.ClassEncode
	if errors.Is(err, ErrNoValidImages) || strings.Contains(err.Error(), "unsupported format") {
		class = fetcher.ClassValidation
	}
	return fetcher.Failure{
		SourceLabel: filepath.Base(imgPath),
		URL:         imgPath,
		Message:     "conversion failed",
		Detail:      err.Error(),
		PageIndex:   1,
		Class:       class,
		Err:         err,
	}
}
