package pages

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

// Document is one logical multi-page remote document.
type Document struct {
	// Label is the filename-like label the document's pages are named
	// after.
	Label string

	// BaseURL is the document URL. When it carries the page-index query
	// parameter, successive pages are discovered by rewriting it.
	BaseURL string
}

// Config holds resolver configuration.
type Config struct {
	// PageParam is the query parameter selecting a page. It is server
	// convention, not protocol: configure it per source.
	PageParam string

	// MaxPages caps probing per document.
	MaxPages int
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		PageParam: "page",
		MaxPages:  50,
	}
}

// Resolver discovers all pages of a document by probing sequential page
// indexes until the server signals end-of-document.
type Resolver struct {
	fetcher *fetcher.Fetcher
	cfg     Config
	logger  zerolog.Logger
}

// New creates a resolver driving the given fetcher.
func New(f *fetcher.Fetcher, cfg Config) *Resolver {
	if cfg.PageParam == "" {
		cfg.PageParam = "page"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &Resolver{
		fetcher: f,
		cfg:     cfg,
		logger:  log.With().Str("component", "pages").Logger(),
	}
}

// Resolve fetches every page of doc in order and returns the downloaded
// page paths plus any failures. The page list is gapless by construction:
// probing halts at the first miss, so a document can never have pages
// {1,3} without page 2.
//
// A 404 past the first page is the expected end-of-document signal and is
// not recorded as a failure. A failure on page 1 means the document
// contributed nothing; exactly one failure is recorded for it.
func (r *Resolver) Resolve(ctx context.Context, doc Document) ([]string, []fetcher.Failure) {
	base, err := url.Parse(doc.BaseURL)
	if err != nil {
		return nil, []fetcher.Failure{{
			SourceLabel: doc.Label,
			URL:         doc.BaseURL,
			Message:     "invalid document URL",
			Detail:      err.Error(),
			PageIndex:   1,
			Class:       fetcher.ClassValidation,
			Err:         err,
		}}
	}

	// No page-index parameter: the document is single-page.
	if !base.Query().Has(r.cfg.PageParam) {
		res := r.fetcher.Fetch(ctx, fetcher.Task{
			Label:           doc.Label,
			URL:             doc.BaseURL,
			DestinationHint: doc.Label,
			PageIndex:       1,
		})
		if !res.OK() {
			return nil, []fetcher.Failure{*res.Failure}
		}
		return []string{res.Path}, nil
	}

	var paths []string
	for p := 1; p <= r.cfg.MaxPages; p++ {
		q := base.Query()
		q.Set(r.cfg.PageParam, strconv.Itoa(p))
		pageURL := *base
		pageURL.RawQuery = q.Encode()

		res := r.fetcher.Fetch(ctx, fetcher.Task{
			Label:           doc.Label,
			URL:             pageURL.String(),
			DestinationHint: doc.Label,
			PageIndex:       p,
		})
		if !res.OK() {
			if p > 1 && res.Failure.EndOfDocument() {
				r.logger.Debug().
					Str("label", doc.Label).
					Int("pages", p-1).
					Msg("End of document")
				return paths, nil
			}
			return paths, []fetcher.Failure{*res.Failure}
		}
		paths = append(paths, res.Path)
	}

	r.logger.Warn().
		Str("label", doc.Label).
		Int("max_pages", r.cfg.MaxPages).
		Msg("Page probe cap reached, document may be truncated")
	return paths, nil
}
