// Package bib persists the Book / Author / DocumentAuthor graph and serves
// the enrichment lookups the answerer attaches to citations.
package bib

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the shared connection pool for bibliographic operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Book is the bibliographic record for any ingested document.
type Book struct {
	ID           int64
	Filename     string
	Title        string
	Author       string // legacy free-text field, read-only fallback
	Category     string
	Subcategory  string
	Description  string
	Tags         string
	DocumentType string
	MCPressURL   string
	ArticleURL   *string
	TotalPages   int
	FileHash     string
	ProcessedAt  time.Time
}

// Author is a shared node across many books.
type Author struct {
	ID        int64
	Name      string
	SiteURL   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthorRef is an author in document order, as emitted in citations.
type AuthorRef struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	SiteURL *string `json:"site_url"`
	Order   int     `json:"order"`
}

// EnsureSchema creates the bibliographic tables. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			subcategory TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT 'book'
				CHECK (document_type IN ('book','article')),
			mc_press_url TEXT NOT NULL DEFAULT '',
			article_url TEXT,
			total_pages INT NOT NULL DEFAULT 0,
			file_hash TEXT NOT NULL DEFAULT '',
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS authors (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			site_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS authors_name_lower_idx
			ON authors ((LOWER(name)))`,
		`CREATE TABLE IF NOT EXISTS document_authors (
			book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			author_id BIGINT NOT NULL REFERENCES authors(id),
			author_order INT NOT NULL,
			PRIMARY KEY (book_id, author_id)
		)`,
		`CREATE INDEX IF NOT EXISTS document_authors_book_idx
			ON document_authors (book_id, author_order)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("bib schema: %w", err)
		}
	}
	return nil
}

// BookByFilename fetches a book record, or ErrNotFound.
func (s *Store) BookByFilename(ctx context.Context, filename string) (*Book, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, filename, title, author, category, subcategory, description,
		       tags, document_type, mc_press_url, article_url, total_pages,
		       file_hash, processed_at
		FROM books WHERE filename = $1`, filename)
	var b Book
	err := row.Scan(&b.ID, &b.Filename, &b.Title, &b.Author, &b.Category,
		&b.Subcategory, &b.Description, &b.Tags, &b.DocumentType,
		&b.MCPressURL, &b.ArticleURL, &b.TotalPages, &b.FileHash, &b.ProcessedAt)
	if err != nil {
		return nil, classifyNotFound(err)
	}
	return &b, nil
}

// DeleteBook removes a book. document_authors rows cascade; authors stay.
// Chunks are owned by the document store and deleted by the caller.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	return err
}
