package ingest

import (
	"regexp"
	"strings"

	"mcpress/internal/names"
)

// Byline patterns in priority order. The first pattern that yields a valid
// name list wins; later patterns never override an earlier hit.
var bylinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*written\s+by[:\s]\s*(.{3,160})\s*$`),
	regexp.MustCompile(`(?im)^\s*by[:\s]\s*(.{3,160})\s*$`),
	regexp.MustCompile(`(?im)^\s*authors?\s*[:\-]\s*(.{3,160})\s*$`),
	regexp.MustCompile(`(?i)copyright\s*(?:©|\(c\))?\s*\d{4}\s*(?:,\s*)?(?:by\s+)?([A-Z][A-Za-z.'\-]+(?:\s+[A-Z][A-Za-z.'\-]+){1,4}(?:\s+and\s+[A-Z][A-Za-z.'\-]+(?:\s+[A-Z][A-Za-z.'\-]+){1,4})?)`),
	regexp.MustCompile(`(?m)^\s*([A-Z][a-z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-z]+\s+and\s+[A-Z][a-z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-z]+)\s*$`),
}

// extractAuthors resolves the document's byline. PDF metadata wins when it
// passes validation; otherwise the first pages are scanned against the
// byline patterns in order.
func extractAuthors(metaAuthor string, pages []string) []string {
	if metaAuthor != "" {
		if parsed := names.ParseList(metaAuthor); len(parsed) > 0 {
			return parsed
		}
	}
	text := strings.Join(pages, "\n")
	if text == "" {
		return nil
	}
	for _, re := range bylinePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if parsed := names.ParseList(m[1]); len(parsed) > 0 {
			return parsed
		}
	}
	return nil
}
