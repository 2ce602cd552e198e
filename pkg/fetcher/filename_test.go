package fetcher

import (
	"strings"
	"testing"
)

func TestDeriveFilename(t *testing.T) {
	tests := []struct {
		name        string
		task        Task
		disposition string
		contentType string
		want        string
	}{
		{
			name: "hint wins over everything",
			task: Task{URL: "https://example.com/other.jpg", DestinationHint: "plan.png"},
			disposition: `attachment; filename="ignored.gif"`,
			contentType: "image/png",
			want:        "plan.png",
		},
		{
			name:        "disposition beats url",
			task:        Task{URL: "https://example.com/path/file.jpg"},
			disposition: `attachment; filename="served.png"`,
			contentType: "image/png",
			want:        "served.png",
		},
		{
			name:        "url basename",
			task:        Task{URL: "https://example.com/docs/scan.jpeg"},
			contentType: "image/jpeg",
			want:        "scan.jpeg",
		},
		{
			name:        "url with query",
			task:        Task{URL: "https://example.com/docs/scan.png?version=2&size=large"},
			contentType: "image/png",
			want:        "scan.png",
		},
		{
			name: "page marker spliced before extension",
			task: Task{
				URL:             "https://example.com/doc",
				DestinationHint: "doc.tiff",
				PageIndex:       4,
			},
			contentType: "image/tiff",
			want:        "doc_page4.tiff",
		},
		{
			name:        "page one gets no marker",
			task:        Task{URL: "https://example.com/doc.png", PageIndex: 1},
			contentType: "image/png",
			want:        "doc.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveFilename(tt.task, tt.disposition, tt.contentType)
			if got != tt.want {
				t.Errorf("deriveFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveFilename_Synthetic(t *testing.T) {
	got := deriveFilename(Task{URL: "https://example.com/preview"}, "", "image/jpeg")
	if !strings.HasPrefix(got, "download_") || !strings.HasSuffix(got, ".jpg") {
		t.Errorf("synthetic name = %q, want download_<hash>.jpg", got)
	}

	// The synthetic name is stable for a given URL.
	again := deriveFilename(Task{URL: "https://example.com/preview"}, "", "image/jpeg")
	if got != again {
		t.Errorf("synthetic name unstable: %q vs %q", got, again)
	}

	other := deriveFilename(Task{URL: "https://example.com/other"}, "", "image/jpeg")
	if got == other {
		t.Error("distinct URLs produced the same synthetic name")
	}
}

func TestRecognizedContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/png", true},
		{"image/jpeg; charset=binary", true},
		{"IMAGE/PNG", true},
		{"application/pdf", true},
		{"text/html", false},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := recognizedContentType(tt.ct); got != tt.want {
			t.Errorf("recognizedContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestSpliceSuffix(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		want   string
	}{
		{"scan.png", "_page3", "scan_page3.png"},
		{"no_ext", "_2", "no_ext_2"},
		{"archive.tar.gz", "_2", "archive.tar_2.gz"},
	}
	for _, tt := range tests {
		if got := spliceSuffix(tt.name, tt.suffix); got != tt.want {
			t.Errorf("spliceSuffix(%q, %q) = %q, want %q", tt.name, tt.suffix, got, tt.want)
		}
	}
}
