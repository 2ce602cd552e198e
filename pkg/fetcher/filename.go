package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

// contentTypeExt maps recognized MIME types to a file extension, used when
// no usable filename can be derived from headers or the URL.
var contentTypeExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/tiff":      ".tiff",
	"image/bmp":       ".bmp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

// normalizeContentType strips parameters ("image/png; charset=...") and
// lowercases the media type.
func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// recognizedContentType reports whether ct looks like an image or PDF.
// Unrecognized types are a warning, not a rejection: acquisition is
// best-effort, not a content gatekeeper.
func recognizedContentType(ct string) bool {
	ct = normalizeContentType(ct)
	if strings.HasPrefix(ct, "image/") {
		return true
	}
	_, ok := contentTypeExt[ct]
	return ok
}

// filenameFromDisposition extracts a filename from a Content-Disposition
// header value, or returns "".
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// filenameFromURL extracts the basename of the URL path, with query
// residue stripped. Returns "" for URLs without a usable path.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	return name
}

// syntheticName builds a stable fallback filename from a hash of the URL
// and an extension guessed from the content type.
func syntheticName(rawURL, contentType string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext, ok := contentTypeExt[normalizeContentType(contentType)]
	if !ok {
		ext = ".img"
	}
	return fmt.Sprintf("download_%s%s", hex.EncodeToString(sum[:6]), ext)
}

// spliceSuffix inserts suffix before the final extension of name.
// "scan.png" + "_page3" -> "scan_page3.png".
func spliceSuffix(name, suffix string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + suffix + ext
}

// deriveFilename resolves the destination filename for a task, by priority:
// explicit hint, Content-Disposition, URL basename, synthetic hash name.
// For page indexes beyond the first, a _page{N} marker is spliced before
// the extension so sibling pages never collide.
func deriveFilename(task Task, disposition, contentType string) string {
	name := task.DestinationHint
	if name == "" {
		name = filenameFromDisposition(disposition)
		if name == "" {
			name = filenameFromURL(task.URL)
		}
		if name == "" || !strings.Contains(name, ".") {
			name = syntheticName(task.URL, contentType)
		}
	}
	if task.PageIndex > 1 {
		name = spliceSuffix(name, fmt.Sprintf("_page%d", task.PageIndex))
	}
	return name
}
