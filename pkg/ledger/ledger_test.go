package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

func TestFlush_EmptyWritesNothing(t *testing.T) {
	dir := t.TempDir()

	l := New()
	path, err := l.Flush(dir)
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if path != "" {
		t.Errorf("Flush() = %q, want empty path for empty ledger", path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("empty ledger created %d files", len(entries))
	}
}

func TestFlush_WritesReport(t *testing.T) {
	dir := t.TempDir()

	l := New()
	l.Record(fetcher.Failure{
		SourceLabel: "plan_A.png",
		URL:         "https://example.com/plan_A.png",
		Message:     "unexpected status 500 Internal Server Error",
		Detail:      "500",
		StatusCode:  500,
		PageIndex:   1,
		Class:       fetcher.ClassHTTPStatus,
	})
	l.RecordAll([]fetcher.Failure{
		{
			SourceLabel: "plan_B.png",
			URL:         "https://example.com/plan_B.png?page=2",
			Message:     "request failed",
			PageIndex:   2,
			Class:       fetcher.ClassTransport,
		},
	})

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	path, err := l.Flush(dir)
	if err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("report written to %q, want under %q", path, dir)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "errors_") || !strings.HasSuffix(name, ".log") {
		t.Errorf("report name = %q, want errors_<timestamp>.log", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(data)
	for _, want := range []string{
		"plan_A.png",
		"https://example.com/plan_A.png",
		string(fetcher.ClassHTTPStatus),
		"plan_B.png",
		string(fetcher.ClassTransport),
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestFlush_Drains(t *testing.T) {
	dir := t.TempDir()

	l := New()
	l.Record(fetcher.Failure{Message: "x", Class: fetcher.ClassIO})

	if _, err := l.Flush(dir); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after flush, want 0", l.Len())
	}

	// A second flush reports nothing new.
	path, err := l.Flush(dir)
	if err != nil {
		t.Fatalf("second Flush() failed: %v", err)
	}
	if path != "" {
		t.Errorf("second Flush() = %q, want empty path", path)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	l := New()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				l.Record(fetcher.Failure{Message: "x", Class: fetcher.ClassIO})
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if l.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", l.Len())
	}
}
