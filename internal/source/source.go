// Package source reads download listings: flat URL files and tabular CSV
// exports carrying a filename label and a relative preview URL.
package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docgrab/docgrab/pkg/batch"
)

// Required CSV columns for preview-URL exports.
const (
	colFilename = "FILENAME"
	colEntryID  = "FILEENTRYID"
	colPreview  = "PREVIEW_URL"
)

// ReadURLFile parses a flat text file with one URL per line. Blank lines
// and lines starting with '#' are skipped.
func ReadURLFile(path string) ([]batch.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var items []batch.Item
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, batch.Item{URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}

	log.Info().Int("urls", len(items)).Str("file", path).Msg("Read URL listing")
	return items, nil
}

// ReadCSV parses a preview-URL export. The header must carry FILENAME,
// FILEENTRYID and PREVIEW_URL columns; each row's PREVIEW_URL is resolved
// against baseURL, so relative paths are completed and absolute URLs pass
// through untouched. Rows with an empty preview URL are skipped.
func ReadCSV(path, baseURL string) ([]batch.Item, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv %s is empty or unreadable: %w", path, err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colFilename, colEntryID, colPreview} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("required column %q not found in %s", required, path)
		}
	}

	var items []batch.Item
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}
	for _, row := range rows {
		filename := strings.Trim(field(row, cols[colFilename]), `"`)
		preview := field(row, cols[colPreview])
		if preview == "" {
			continue
		}

		ref, err := url.Parse(preview)
		if err != nil {
			log.Warn().Str("preview_url", preview).Msg("Skipping malformed preview URL")
			continue
		}
		items = append(items, batch.Item{
			Label: filename,
			URL:   base.ResolveReference(ref).String(),
		})
	}

	log.Info().Int("urls", len(items)).Str("file", path).Msg("Extracted preview URLs")
	return items, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// WriteURLList writes the extracted URLs, one per line, to path.
func WriteURLList(items []batch.Item, path string) error {
	if len(items) == 0 {
		return fmt.Errorf("no URLs to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create url directory: %w", err)
	}

	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.URL)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write url list: %w", err)
	}

	log.Info().Int("urls", len(items)).Str("file", path).Msg("URL list written")
	return nil
}

// WriteURLMap writes a FILENAME,FULL_URL mapping CSV to path.
func WriteURLMap(items []batch.Item, path string) error {
	if len(items) == 0 {
		return fmt.Errorf("no URLs to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create url directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create url map: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{colFilename, "FULL_URL"}); err != nil {
		return fmt.Errorf("write url map header: %w", err)
	}
	for _, item := range items {
		if err := w.Write([]string{item.Label, item.URL}); err != nil {
			return fmt.Errorf("write url map row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush url map: %w", err)
	}

	log.Info().Int("urls", len(items)).Str("file", path).Msg("URL map written")
	return nil
}
