package bib

import (
	"context"
)

// Enrichment is the bibliographic context attached to a retrieved chunk.
// Authors is empty when a book predates the normalized graph; LegacyAuthor
// then carries the free-text fallback.
type Enrichment struct {
	BookID       int64
	Title        string
	DocumentType string
	MCPressURL   string
	ArticleURL   *string
	Authors      []AuthorRef
	LegacyAuthor string
}

// Enrich resolves the citation fields for one filename with a single book
// lookup plus one ordered author query. ErrNotFound means no book row
// exists for the filename; callers degrade to a stub.
func (s *Store) Enrich(ctx context.Context, filename string) (*Enrichment, error) {
	b, err := s.BookByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	authors, err := s.AuthorsForDocument(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &Enrichment{
		BookID:       b.ID,
		Title:        b.Title,
		DocumentType: b.DocumentType,
		MCPressURL:   b.MCPressURL,
		ArticleURL:   b.ArticleURL,
		Authors:      authors,
		LegacyAuthor: b.Author,
	}, nil
}

// DisplayAuthor renders the comma-joined author byline for a citation,
// falling back to the legacy field and then to "Unknown".
func (e *Enrichment) DisplayAuthor() string {
	if len(e.Authors) > 0 {
		out := ""
		for i, a := range e.Authors {
			if i > 0 {
				out += ", "
			}
			out += a.Name
		}
		return out
	}
	if e.LegacyAuthor != "" {
		return e.LegacyAuthor
	}
	return "Unknown"
}
