package assembler

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	// Decoders for validation. The pipeline's fetch side is deliberately
	// lenient about content, so conversion re-checks every input here.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// supportedExts is the raster input whitelist. Anything else is skipped
// with a validation failure, never a pipeline abort.
var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// SupportedExt reports whether path has a supported raster extension.
func SupportedExt(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// validateImage checks that path exists, has a supported extension, and
// carries a decodable image header.
func validateImage(path string) error {
	if !SupportedExt(path) {
		return fmt.Errorf("unsupported format %q", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("decode image header: %w", err)
	}
	return nil
}

// prepareImage validates path and returns a path the PDF encoder can
// ingest, with a cleanup func for any temporary transcode. The encoder
// reads PNG/JPEG/TIFF/WebP natively; BMP input is transcoded to an RGBA-
// normalized PNG first.
func prepareImage(path string) (string, func(), error) {
	if err := validateImage(path); err != nil {
		return "", nil, err
	}

	if strings.ToLower(filepath.Ext(path)) != ".bmp" {
		return path, func() {}, nil
	}

	normalized, err := transcodeBMP(path)
	if err != nil {
		return "", nil, err
	}
	return normalized, func() { _ = os.Remove(normalized) }, nil
}

// transcodeBMP decodes a BMP, draws it onto an RGBA canvas, and writes a
// sibling temp PNG.
func transcodeBMP(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open bmp: %w", err)
	}
	defer f.Close()

	src, err := bmp.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode bmp: %w", err)
	}

	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	out, err := os.CreateTemp(filepath.Dir(path), "transcode-*.png")
	if err != nil {
		return "", fmt.Errorf("create transcode temp: %w", err)
	}

	if err := png.Encode(out, rgba); err != nil {
		out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close transcode temp: %w", err)
	}
	return out.Name(), nil
}
