package assembler

import (
	"testing"
)

func TestSupportedExt(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"scan.png", true},
		{"scan.PNG", true},
		{"photo.jpg", true},
		{"photo.jpeg", true},
		{"fax.tiff", true},
		{"fax.bmp", true},
		{"web.webp", true},
		{"doc.pdf", false},
		{"notes.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := SupportedExt(tt.path); got != tt.want {
			t.Errorf("SupportedExt(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestValidateImage_MissingFile(t *testing.T) {
	if err := validateImage("/nonexistent/x.png"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateImage_UnsupportedExtension(t *testing.T) {
	if err := validateImage("whatever.txt"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
