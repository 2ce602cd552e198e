// Package pages reconstructs multi-page remote documents by sequential
// page-index probing.
//
// Some document servers expose one raster image per page, selected by a
// query parameter, and answer 404 once the index runs past the last page.
// The resolver walks indexes 1, 2, 3, ... fetching each page until that
// signal arrives:
//
//	resolver := pages.New(f, pages.DefaultConfig())
//	paths, failures := resolver.Resolve(ctx, pages.Document{
//		Label:   "report.png",
//		BaseURL: "https://host/preview?id=42&page=1",
//	})
//
// The returned paths are in page order with no gaps. URLs without the
// page parameter are treated as single-page documents and fetched once.
package pages
