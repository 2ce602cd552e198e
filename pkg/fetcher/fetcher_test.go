package fetcher

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docgrab/docgrab/internal/testutil"
)

// newTestFetcher creates a fetcher writing into a test temp dir.
func newTestFetcher(t *testing.T, mutate func(*Config)) *Fetcher {
	t.Helper()

	cfg := DefaultConfig(t.TempDir())
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for missing output dir, got nil")
	}
}

func TestFetch_Success(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/scan.png"})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}
	if res.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", res.ContentType)
	}
	if got := filepath.Base(res.Path); got != "scan.png" {
		t.Errorf("filename = %q, want scan.png", got)
	}
	if res.URL != origin.URL()+"/scan.png" {
		t.Errorf("URL = %q, want the task URL", res.URL)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("download not on disk: %v", err)
	}
	if len(data) == 0 {
		t.Error("downloaded file is empty")
	}
}

func TestFetch_SendsUserAgent(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/img.png"})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}
	if ua := origin.LastRequestHeader().Get("User-Agent"); ua != "docgrab/1.0" {
		t.Errorf("User-Agent = %q, want docgrab/1.0", ua)
	}
}

func TestFetch_NotFound(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/missing.png", testutil.NewNotFoundResponse())

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/missing.png"})
	if res.OK() {
		t.Fatal("expected failure for 404 response")
	}
	if res.Failure.Class != ClassHTTPStatus {
		t.Errorf("Class = %q, want %q", res.Failure.Class, ClassHTTPStatus)
	}
	if res.Failure.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", res.Failure.StatusCode)
	}
	if !res.Failure.EndOfDocument() {
		t.Error("EndOfDocument() = false for a 404 failure")
	}
}

func TestFetch_ServerError(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/broken.png", testutil.NewServerErrorResponse())

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/broken.png"})
	if res.OK() {
		t.Fatal("expected failure for 500 response")
	}
	if res.Failure.Class != ClassHTTPStatus {
		t.Errorf("Class = %q, want %q", res.Failure.Class, ClassHTTPStatus)
	}
	if res.Failure.EndOfDocument() {
		t.Error("EndOfDocument() = true for a 500 failure")
	}
}

func TestFetch_Timeout(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/slow.png", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.TinyPNG(),
		Headers:    map[string]string{"Content-Type": "image/png"},
		Delay:      300 * time.Millisecond,
	})

	f := newTestFetcher(t, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
	})
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/slow.png"})
	if res.OK() {
		t.Fatal("expected timeout failure")
	}
	if res.Failure.Class != ClassTransport {
		t.Errorf("Class = %q, want %q", res.Failure.Class, ClassTransport)
	}
}

func TestFetch_ContentDisposition(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/dl", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.TinyPNG(),
		Headers: map[string]string{
			"Content-Type":        "image/png",
			"Content-Disposition": `attachment; filename="report_42.png"`,
		},
	})

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/dl"})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}
	if got := filepath.Base(res.Path); got != "report_42.png" {
		t.Errorf("filename = %q, want report_42.png", got)
	}
}

func TestFetch_ContentTypePolicy(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/page.html", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Headers:    map[string]string{"Content-Type": "text/html"},
	})

	t.Run("lenient persists the body", func(t *testing.T) {
		f := newTestFetcher(t, nil)
		res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/page.html"})
		if !res.OK() {
			t.Fatalf("Fetch() failed: %v", res.Failure)
		}
		if _, err := os.Stat(res.Path); err != nil {
			t.Errorf("download not on disk: %v", err)
		}
	})

	t.Run("strict rejects", func(t *testing.T) {
		f := newTestFetcher(t, func(cfg *Config) {
			cfg.StrictContentType = true
		})
		res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/page.html"})
		if res.OK() {
			t.Fatal("expected validation failure")
		}
		if res.Failure.Class != ClassValidation {
			t.Errorf("Class = %q, want %q", res.Failure.Class, ClassValidation)
		}
	})
}

func TestFetch_DestinationHint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{
		URL:             origin.URL() + "/whatever",
		DestinationHint: "drawing_A1.png",
	})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}
	if got := filepath.Base(res.Path); got != "drawing_A1.png" {
		t.Errorf("filename = %q, want drawing_A1.png", got)
	}
}

func TestFetch_PageSuffix(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	f := newTestFetcher(t, nil)
	res := f.Fetch(context.Background(), Task{
		URL:             origin.URL() + "/doc",
		DestinationHint: "doc.png",
		PageIndex:       3,
	})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}
	if got := filepath.Base(res.Path); got != "doc_page3.png" {
		t.Errorf("filename = %q, want doc_page3.png", got)
	}
}

func TestFetch_CollisionSuffix(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	f := newTestFetcher(t, nil)
	first := f.Fetch(context.Background(), Task{
		URL:             origin.URL() + "/a.png",
		DestinationHint: "same.png",
	})
	second := f.Fetch(context.Background(), Task{
		URL:             origin.URL() + "/b.png",
		DestinationHint: "same.png",
	})
	if !first.OK() || !second.OK() {
		t.Fatalf("fetches failed: %v / %v", first.Failure, second.Failure)
	}
	if first.Path == second.Path {
		t.Fatalf("distinct sources wrote the same path %q", first.Path)
	}
	if got := filepath.Base(second.Path); got != "same_2.png" {
		t.Errorf("second filename = %q, want same_2.png", got)
	}
}

func TestFetch_ConcurrencyBound(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/img.png", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       testutil.TinyPNG(),
		Headers:    map[string]string{"Content-Type": "image/png"},
		Delay:      30 * time.Millisecond,
	})

	const limit = 3
	f := newTestFetcher(t, func(cfg *Config) {
		cfg.MaxConcurrency = limit
	})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Fetch(context.Background(), Task{URL: origin.URL() + "/img.png"})
		}()
	}
	wg.Wait()

	if peak := origin.MaxInFlight(); peak > limit {
		t.Errorf("peak in-flight requests = %d, want <= %d", peak, limit)
	}
	if count := origin.GetRequestCount(); count != 12 {
		t.Errorf("request count = %d, want 12", count)
	}
}

func TestFetch_NoPartialFiles(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res := f.Fetch(context.Background(), Task{URL: origin.URL() + "/img.png"})
	if !res.OK() {
		t.Fatalf("Fetch() failed: %v", res.Failure)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".partial" {
			t.Errorf("leftover temp file %q after successful fetch", entry.Name())
		}
	}
}

func TestCheck(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/page.html", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/html"},
	})

	f := newTestFetcher(t, nil)

	ok, contentType, err := f.Check(context.Background(), origin.URL()+"/img.png")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !ok || contentType != "image/png" {
		t.Errorf("Check() = (%v, %q), want (true, image/png)", ok, contentType)
	}

	ok, contentType, err = f.Check(context.Background(), origin.URL()+"/page.html")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Errorf("Check() accepted content type %q", contentType)
	}
}

func TestCheck_ReportsRegardlessOfStrictness(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/page.html", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/html"},
	})

	// Check reports the verdict either way; strictness only governs
	// downloads.
	f := newTestFetcher(t, func(cfg *Config) {
		cfg.StrictContentType = true
	})
	ok, contentType, err := f.Check(context.Background(), origin.URL()+"/page.html")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if ok {
		t.Error("Check() = true for text/html")
	}
	if contentType != "text/html" {
		t.Errorf("contentType = %q, want text/html", contentType)
	}
}
