// Package pipeline wires the download and conversion stages together:
// input listing → batched fetches (optionally via page probing) →
// PDF assembly → error report. Per-item failures land in the ledger and
// never abort a run; only systemic failures (unreadable input, unwritable
// output root) surface as errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/docgrab/docgrab/internal/source"
	"github.com/docgrab/docgrab/pkg/assembler"
	"github.com/docgrab/docgrab/pkg/batch"
	"github.com/docgrab/docgrab/pkg/fetcher"
	"github.com/docgrab/docgrab/pkg/journal"
	"github.com/docgrab/docgrab/pkg/ledger"
	"github.com/docgrab/docgrab/pkg/pages"
)

// ErrNothingDownloaded is returned when no item of a run could be fetched.
var ErrNothingDownloaded = errors.New("no resources downloaded successfully")

// DocumentPageSet maps a document identifier (extension-stripped source
// name) to its ordered page paths, page 1 first. An identifier present in
// the set always has at least one page.
type DocumentPageSet map[string][]string

// Config holds pipeline configuration.
type Config struct {
	// OutputDir is the run's output root; imgs/, pdfs/ and urls/ live
	// under it.
	OutputDir string

	// Concurrency bounds in-flight downloads.
	Concurrency int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// BatchSize partitions large inputs.
	BatchSize int

	// DPI is the PDF render resolution.
	DPI int

	// Workers bounds concurrent encode jobs.
	Workers int

	// PageParam is the page-index query parameter for multi-page
	// documents.
	PageParam string

	// MaxPages caps page probing per document.
	MaxPages int

	// KeepImages retains downloaded images after successful conversion.
	KeepImages bool

	// BaseURL resolves relative preview URLs from CSV input.
	BaseURL string

	// StrictContentType rejects unrecognized content types.
	StrictContentType bool

	// RetryAttempts is the total fetch attempts per item.
	RetryAttempts int

	// Journal optionally skips URLs fetched by a previous run.
	Journal *journal.Manager
}

// DefaultConfig returns safe defaults rooted at outputDir.
func DefaultConfig(outputDir string) Config {
	return Config{
		OutputDir:   outputDir,
		Concurrency: 20,
		Timeout:     30 * time.Second,
		BatchSize:   100,
		DPI:         200,
		Workers:     8,
		PageParam:   "page",
		MaxPages:    50,
	}
}

// Pipeline drives a whole run.
type Pipeline struct {
	fetcher     *fetcher.Fetcher
	coordinator *batch.Coordinator
	resolver    *pages.Resolver
	assembler   *assembler.Assembler
	ledger      *ledger.Ledger
	journal     *journal.Manager
	cfg         Config
	logger      zerolog.Logger

	imgsDir string
	pdfsDir string
	urlsDir string
}

// New creates a pipeline and bootstraps the output tree. Failure to
// create the output directories is systemic and aborts construction.
func New(cfg Config) (*Pipeline, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	imgsDir := filepath.Join(cfg.OutputDir, "imgs")
	pdfsDir := filepath.Join(cfg.OutputDir, "pdfs")
	urlsDir := filepath.Join(cfg.OutputDir, "urls")
	for _, dir := range []string{imgsDir, pdfsDir, urlsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	fetchCfg := fetcher.DefaultConfig(imgsDir)
	fetchCfg.MaxConcurrency = cfg.Concurrency
	fetchCfg.Timeout = cfg.Timeout
	fetchCfg.StrictContentType = cfg.StrictContentType
	if cfg.RetryAttempts > 1 {
		fetchCfg.Retry.MaxAttempts = cfg.RetryAttempts
	}

	f, err := fetcher.New(fetchCfg)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	batchCfg := batch.DefaultConfig()
	if cfg.BatchSize > 0 {
		batchCfg.BatchSize = cfg.BatchSize
	}

	pagesCfg := pages.DefaultConfig()
	if cfg.PageParam != "" {
		pagesCfg.PageParam = cfg.PageParam
	}
	if cfg.MaxPages > 0 {
		pagesCfg.MaxPages = cfg.MaxPages
	}

	asmCfg := assembler.DefaultConfig()
	if cfg.DPI > 0 {
		asmCfg.DPI = cfg.DPI
	}
	if cfg.Workers > 0 {
		asmCfg.MaxWorkers = cfg.Workers
	}

	return &Pipeline{
		fetcher:     f,
		coordinator: batch.New(f, batchCfg),
		resolver:    pages.New(f, pagesCfg),
		assembler:   assembler.New(asmCfg),
		ledger:      ledger.New(),
		journal:     cfg.Journal,
		cfg:         cfg,
		logger:      log.With().Str("component", "pipeline").Logger(),
		imgsDir:     imgsDir,
		pdfsDir:     pdfsDir,
		urlsDir:     urlsDir,
	}, nil
}

// Close drains the assembler pool and flushes the error report.
func (p *Pipeline) Close() error {
	p.assembler.Close()
	_, err := p.ledger.Flush(p.cfg.OutputDir)
	return err
}

// Ledger exposes the run's failure ledger.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// Progress returns (completed, total) of the batch run in flight.
func (p *Pipeline) Progress() (int, int) {
	return p.coordinator.Progress()
}

// ProcessSingle downloads one URL and converts it to a PDF. outputName
// overrides the derived PDF filename when non-empty.
func (p *Pipeline) ProcessSingle(ctx context.Context, url, outputName string) error {
	res := p.fetchWithJournal(ctx, fetcher.Task{URL: url})
	if !res.OK() {
		p.ledger.Record(*res.Failure)
		return fmt.Errorf("download %s: %w", url, res.Failure)
	}

	pdfName := outputName
	if pdfName == "" {
		pdfName = documentID(res.Path) + ".pdf"
	}
	pdfPath := filepath.Join(p.pdfsDir, pdfName)

	if err := p.assembler.ConvertOne(ctx, res.Path, pdfPath); err != nil {
		p.recordConversionFailure(res.Path, err)
		return fmt.Errorf("convert %s: %w", res.Path, err)
	}

	p.cleanupImages([]string{res.Path})
	p.logger.Info().Str("pdf", pdfPath).Msg("Single document processed")
	return nil
}

// ProcessURLs downloads every item and converts the results: one PDF per
// image, or one combined multi-page PDF when combine is set. Partial
// success is success; the run fails only when nothing was downloaded or
// nothing could be converted.
func (p *Pipeline) ProcessURLs(ctx context.Context, items []batch.Item, combine bool) error {
	if len(items) == 0 {
		return fmt.Errorf("no URLs to process")
	}

	start := time.Now()
	toFetch, journaled := p.partitionJournaled(ctx, items)

	fetched, failures := p.coordinator.Run(ctx, toFetch)
	p.ledger.RecordAll(failures)
	p.journalSuccesses(ctx, fetched)

	downloaded := journaled
	for _, res := range fetched {
		downloaded = append(downloaded, res.Path)
	}
	if len(downloaded) == 0 {
		return ErrNothingDownloaded
	}

	// Files that are already PDFs need no conversion.
	images := make([]string, 0, len(downloaded))
	for _, path := range downloaded {
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			continue
		}
		images = append(images, path)
	}
	if len(images) == 0 {
		p.logger.Info().Msg("All downloads were already PDFs, nothing to convert")
		return nil
	}

	if combine {
		pdfPath := filepath.Join(p.pdfsDir, fmt.Sprintf("combined_%d.pdf", time.Now().Unix()))
		if err := p.assembler.ConvertMany(ctx, images, pdfPath); err != nil {
			p.recordConversionFailure(pdfPath, err)
			return fmt.Errorf("combine images: %w", err)
		}
		p.cleanupImages(images)
	} else {
		converted, convFailures := p.assembler.ConvertBatch(ctx, images, p.imgsDir, p.pdfsDir, p.cfg.BatchSize)
		p.ledger.RecordAll(convFailures)
		if len(converted) == 0 {
			return fmt.Errorf("convert downloads: %w", assembler.ErrNoValidImages)
		}
		p.cleanupConverted(images, convFailures)
	}

	p.logger.Info().
		Int("downloaded", len(downloaded)).
		Int("failed", p.ledger.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Run complete")
	return nil
}

// ProcessFile reads a flat URL listing and processes it.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, combine bool) error {
	items, err := source.ReadURLFile(path)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no URLs found in %s", path)
	}
	return p.ProcessURLs(ctx, items, combine)
}

// ProcessCSV reads a preview-URL export, persists the extracted listing
// under urls/, and processes it.
func (p *Pipeline) ProcessCSV(ctx context.Context, csvPath string, combine bool) error {
	items, err := source.ReadCSV(csvPath, p.cfg.BaseURL)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no preview URLs found in %s", csvPath)
	}

	if err := source.WriteURLList(items, filepath.Join(p.urlsDir, "preview_urls.txt")); err != nil {
		p.logger.Warn().Err(err).Msg("Could not persist URL list")
	}
	if err := source.WriteURLMap(items, filepath.Join(p.urlsDir, "filename_url_map.csv")); err != nil {
		p.logger.Warn().Err(err).Msg("Could not persist URL map")
	}

	return p.ProcessURLs(ctx, items, combine)
}

// ProcessDocuments treats each item as a potentially multi-page document:
// pages are discovered by sequential probing, each document's pages are
// combined into one PDF named after its identifier. Documents resolve
// concurrently; page order within a document is strict.
func (p *Pipeline) ProcessDocuments(ctx context.Context, items []batch.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("no documents to process")
	}

	pageSet := make(DocumentPageSet)
	ids := make([]string, 0, len(items))
	var mu sync.Mutex

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(p.cfg.Concurrency, 1))
	for _, item := range items {
		eg.Go(func() error {
			paths, failures := p.resolver.Resolve(gctx, pages.Document{
				Label:   item.Label,
				BaseURL: item.URL,
			})
			mu.Lock()
			defer mu.Unlock()
			p.ledger.RecordAll(failures)
			if len(paths) == 0 {
				// Failed documents are excluded entirely, never stored
				// as empty entries.
				return nil
			}
			id := p.uniqueDocumentID(pageSet, item.Label, paths[0])
			pageSet[id] = paths
			ids = append(ids, id)
			return nil
		})
	}
	_ = eg.Wait()

	if len(pageSet) == 0 {
		return ErrNothingDownloaded
	}

	converted := 0
	for _, id := range ids {
		pagePaths := pageSet[id]
		pdfPath := filepath.Join(p.pdfsDir, id+".pdf")
		if err := p.assembler.ConvertMany(ctx, pagePaths, pdfPath); err != nil {
			p.recordConversionFailure(pdfPath, err)
			continue
		}
		converted++
		p.cleanupImages(pagePaths)
	}

	p.logger.Info().
		Int("documents", len(items)).
		Int("converted", converted).
		Msg("Document run complete")
	if converted == 0 {
		return assembler.ErrNoValidImages
	}
	return nil
}

// CheckURL reports whether url serves image content, without downloading.
func (p *Pipeline) CheckURL(ctx context.Context, url string) (bool, string, error) {
	return p.fetcher.Check(ctx, url)
}

// fetchWithJournal consults the journal before fetching and records a
// successful fetch into it. Journal errors degrade to a normal fetch.
func (p *Pipeline) fetchWithJournal(ctx context.Context, task fetcher.Task) fetcher.Result {
	if p.journal != nil {
		if entry, err := p.journal.Lookup(ctx, task.URL); err == nil {
			p.logger.Debug().Str("url", task.URL).Str("path", entry.Path).Msg("Journal hit")
			return fetcher.Result{Path: entry.Path, ContentType: entry.ContentType}
		}
	}

	res := p.fetcher.Fetch(ctx, task)
	if res.OK() && p.journal != nil {
		if err := p.journal.MarkDone(ctx, task.URL, res.Path, res.ContentType); err != nil {
			p.logger.Warn().Err(err).Str("url", task.URL).Msg("Journal write failed")
		}
	}
	return res
}

// partitionJournaled splits items into already-journaled paths and items
// still needing a fetch.
func (p *Pipeline) partitionJournaled(ctx context.Context, items []batch.Item) (toFetch []batch.Item, journaled []string) {
	if p.journal == nil {
		return items, nil
	}
	for _, item := range items {
		if entry, err := p.journal.Lookup(ctx, item.URL); err == nil {
			journaled = append(journaled, entry.Path)
			continue
		}
		toFetch = append(toFetch, item)
	}
	if len(journaled) > 0 {
		p.logger.Info().
			Int("journaled", len(journaled)).
			Int("to_fetch", len(toFetch)).
			Msg("Resuming from journal")
	}
	return toFetch, journaled
}

// journalSuccesses records freshly fetched results. The first write
// error stops journaling for the run; later lookups simply miss.
func (p *Pipeline) journalSuccesses(ctx context.Context, results []fetcher.Result) {
	if p.journal == nil {
		return
	}
	for _, res := range results {
		if err := p.journal.MarkDone(ctx, res.URL, res.Path, res.ContentType); err != nil {
			p.logger.Warn().Err(err).Str("url", res.URL).Msg("Journal write failed")
			return
		}
	}
}

// recordConversionFailure ledgers a conversion error.
func (p *Pipeline) recordConversionFailure(path string, err error) {
	p.ledger.Record(fetcher.Failure{
		SourceLabel: filepath.Base(path),
		URL:         path,
		Message:     "conversion failed",
		Detail:      err.Error(),
		PageIndex:   1,
		Class:       fetcher.ClassEncode,
		Err:         err,
	})
}

// cleanupImages deletes intermediate downloads unless configured to keep
// them.
func (p *Pipeline) cleanupImages(paths []string) {
	if p.cfg.KeepImages {
		return
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Debug().Str("path", path).Err(err).Msg("Could not remove intermediate file")
		}
	}
}

// cleanupConverted removes only images whose conversion succeeded.
func (p *Pipeline) cleanupConverted(images []string, failures []fetcher.Failure) {
	if p.cfg.KeepImages {
		return
	}
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.URL] = true
	}
	var ok []string
	for _, img := range images {
		if !failed[img] {
			ok = append(ok, img)
		}
	}
	p.cleanupImages(ok)
}

// uniqueDocumentID derives a document identifier from the label (or the
// first page path) and disambiguates collisions with a numeric suffix.
func (p *Pipeline) uniqueDocumentID(set DocumentPageSet, label, firstPage string) string {
	base := label
	if base == "" {
		base = filepath.Base(firstPage)
	}
	id := documentID(base)
	candidate := id
	for n := 2; ; n++ {
		if _, exists := set[candidate]; !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
}

// documentID strips the extension from a filename-like string.
func documentID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
