package pages

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/docgrab/docgrab/internal/testutil"
	"github.com/docgrab/docgrab/pkg/fetcher"
)

func newTestResolver(t *testing.T, maxPages int) *Resolver {
	t.Helper()

	fcfg := fetcher.DefaultConfig(t.TempDir())
	fcfg.Timeout = 5 * time.Second
	f, err := fetcher.New(fcfg)
	if err != nil {
		t.Fatalf("fetcher.New() failed: %v", err)
	}

	cfg := DefaultConfig()
	if maxPages > 0 {
		cfg.MaxPages = maxPages
	}
	return New(f, cfg)
}

func TestResolve_MultiPage(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetPagedDocument("/doc", "page", 4)

	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "manual.png",
		BaseURL: origin.URL() + "/doc?page=1",
	})
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}
	if len(paths) != 4 {
		t.Fatalf("pages = %d, want 4", len(paths))
	}

	// Page order is strict and the page marker keeps siblings apart.
	want := []string{"manual.png", "manual_page2.png", "manual_page3.png", "manual_page4.png"}
	for i, path := range paths {
		if got := filepath.Base(path); got != want[i] {
			t.Errorf("page %d = %q, want %q", i+1, got, want[i])
		}
	}
}

func TestResolve_SinglePageDocument(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetPagedDocument("/doc", "page", 1)

	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "single.png",
		BaseURL: origin.URL() + "/doc?page=1",
	})
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}
	if len(paths) != 1 {
		t.Errorf("pages = %d, want 1", len(paths))
	}
}

func TestResolve_NoPageParam(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "flat.png",
		BaseURL: origin.URL() + "/flat.png",
	})
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}
	if len(paths) != 1 {
		t.Fatalf("pages = %d, want 1", len(paths))
	}
	// Only one request: no probing without the page parameter.
	if count := origin.GetRequestCount(); count != 1 {
		t.Errorf("request count = %d, want 1", count)
	}
}

func TestResolve_MissingDocument(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetPagedDocument("/doc", "page", 0)

	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "ghost.png",
		BaseURL: origin.URL() + "/doc?page=1",
	})
	if len(paths) != 0 {
		t.Errorf("pages = %d, want 0", len(paths))
	}
	// A miss on page 1 is a real failure, not end-of-document.
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	if failures[0].PageIndex != 1 {
		t.Errorf("failure page = %d, want 1", failures[0].PageIndex)
	}
}

func TestResolve_FailureMidDocument(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	body := testutil.TinyPNG()
	origin.SetHandler("/doc", func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Query().Get("page") {
		case "1", "2":
			w.Header().Set("Content-Type", "image/png")
			w.Write(body)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "flaky.png",
		BaseURL: origin.URL() + "/doc?page=1",
	})
	// Pages fetched before the failure are kept.
	if len(paths) != 2 {
		t.Errorf("pages = %d, want 2", len(paths))
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	if failures[0].PageIndex != 3 {
		t.Errorf("failure page = %d, want 3", failures[0].PageIndex)
	}
}

func TestResolve_ProbeCap(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetPagedDocument("/doc", "page", 100)

	r := newTestResolver(t, 5)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "endless.png",
		BaseURL: origin.URL() + "/doc?page=1",
	})
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}
	if len(paths) != 5 {
		t.Errorf("pages = %d, want the cap of 5", len(paths))
	}
}

func TestResolve_InvalidURL(t *testing.T) {
	r := newTestResolver(t, 0)
	paths, failures := r.Resolve(context.Background(), Document{
		Label:   "bad",
		BaseURL: "http://example.com/\x7f",
	})
	if len(paths) != 0 || len(failures) != 1 {
		t.Fatalf("Resolve() = (%d paths, %d failures), want (0, 1)", len(paths), len(failures))
	}
	if failures[0].Class != fetcher.ClassValidation {
		t.Errorf("failure class = %q, want %q", failures[0].Class, fetcher.ClassValidation)
	}
}
