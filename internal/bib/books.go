package bib

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
)

// BookUpsert carries the bibliographic fields written during indexing.
// Empty strings leave the stored value untouched so admin edits survive
// re-ingestion. DocumentType is the exception: it is always written, and
// an empty value is stored as "book".
type BookUpsert struct {
	Filename     string
	Title        string
	Author       string // legacy display string, kept in sync at ingest time
	Category     string
	Subcategory  string
	Description  string
	Tags         string
	DocumentType string
	MCPressURL   string
	ArticleURL   *string
	TotalPages   int
	FileHash     string
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrConstraint, raw)
	}
	return nil
}

// Validate checks URL shape and document type before any write.
func (u BookUpsert) Validate() error {
	if u.Filename == "" {
		return fmt.Errorf("%w: empty filename", ErrConstraint)
	}
	switch u.DocumentType {
	case "", "book", "article":
	default:
		return fmt.Errorf("%w: document_type %q", ErrConstraint, u.DocumentType)
	}
	if err := validateHTTPURL(u.MCPressURL); err != nil {
		return err
	}
	if u.ArticleURL != nil {
		if err := validateHTTPURL(*u.ArticleURL); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBook inserts or updates the book row keyed by filename inside the
// caller's transaction, returning the stable book id. The id is preserved
// across re-ingestion so external citations stay valid.
func UpsertBook(ctx context.Context, tx pgx.Tx, u BookUpsert) (int64, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}
	docType := u.DocumentType
	if docType == "" {
		docType = "book"
	}
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO books (filename, title, author, category, subcategory,
		                   description, tags, document_type, mc_press_url,
		                   article_url, total_pages, file_hash, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (filename) DO UPDATE SET
			title        = CASE WHEN EXCLUDED.title = '' THEN books.title ELSE EXCLUDED.title END,
			author       = CASE WHEN EXCLUDED.author = '' THEN books.author ELSE EXCLUDED.author END,
			category     = CASE WHEN EXCLUDED.category = '' THEN books.category ELSE EXCLUDED.category END,
			subcategory  = CASE WHEN EXCLUDED.subcategory = '' THEN books.subcategory ELSE EXCLUDED.subcategory END,
			description  = CASE WHEN EXCLUDED.description = '' THEN books.description ELSE EXCLUDED.description END,
			tags         = CASE WHEN EXCLUDED.tags = '' THEN books.tags ELSE EXCLUDED.tags END,
			document_type = EXCLUDED.document_type,
			mc_press_url = CASE WHEN EXCLUDED.mc_press_url = '' THEN books.mc_press_url ELSE EXCLUDED.mc_press_url END,
			article_url  = COALESCE(EXCLUDED.article_url, books.article_url),
			total_pages  = CASE WHEN EXCLUDED.total_pages = 0 THEN books.total_pages ELSE EXCLUDED.total_pages END,
			file_hash    = CASE WHEN EXCLUDED.file_hash = '' THEN books.file_hash ELSE EXCLUDED.file_hash END,
			processed_at = now()
		RETURNING id`,
		u.Filename, u.Title, u.Author, u.Category, u.Subcategory,
		u.Description, u.Tags, docType, u.MCPressURL, u.ArticleURL,
		u.TotalPages, u.FileHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert book %s: %w", u.Filename, err)
	}
	return id, nil
}

// Begin exposes a transaction on the underlying pool so the indexer can
// commit bibliographic and chunk writes together.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}
