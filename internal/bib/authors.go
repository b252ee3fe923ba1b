package bib

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"mcpress/internal/names"
)

// ValidateSiteURL rejects non-empty URLs that are not http(s).
func ValidateSiteURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: site_url %q is not an http(s) URL", ErrConstraint, raw)
	}
	return nil
}

// GetOrCreateAuthor resolves an author id by normalized name, creating the
// row on first reference. Deduplication rides on the LOWER(name) unique
// index; concurrent callers race through the upsert, never through an
// application lock. A site URL supplied later fills a previously empty one.
func (s *Store) GetOrCreateAuthor(ctx context.Context, name string, siteURL *string) (int64, error) {
	n := names.Normalize(name)
	if n == "" {
		return 0, fmt.Errorf("%w: empty author name", ErrConstraint)
	}
	if siteURL != nil {
		if err := ValidateSiteURL(*siteURL); err != nil {
			return 0, err
		}
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO authors (name, site_url)
		VALUES ($1, $2)
		ON CONFLICT ((LOWER(name))) DO UPDATE SET
			site_url = COALESCE(authors.site_url, EXCLUDED.site_url),
			updated_at = now()
		RETURNING id`, n, siteURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get_or_create_author %q: %w", n, err)
	}
	return id, nil
}

// UpdateAuthor edits a singleton author row; every citing book sees the
// change because authors are shared, not copied.
func (s *Store) UpdateAuthor(ctx context.Context, id int64, name string, siteURL *string) error {
	n := names.Normalize(name)
	if n == "" {
		return fmt.Errorf("%w: empty author name", ErrConstraint)
	}
	if siteURL != nil {
		if err := ValidateSiteURL(*siteURL); err != nil {
			return err
		}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE authors SET name = $2, site_url = $3, updated_at = now()
		WHERE id = $1`, id, n, siteURL)
	if err != nil {
		if strings.Contains(err.Error(), "authors_name_lower_idx") {
			return fmt.Errorf("%w: author name %q already exists", ErrConstraint, n)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddAuthorToDocument links an author at the given order. Duplicate
// (book, author) pairs are rejected.
func (s *Store) AddAuthorToDocument(ctx context.Context, bookID, authorID int64, order int) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO document_authors (book_id, author_id, author_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (book_id, author_id) DO NOTHING`, bookID, authorID, order)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: author %d already on book %d", ErrConstraint, authorID, bookID)
	}
	return nil
}

// RemoveAuthorFromDocument unlinks an author unless it is the book's last
// one, then resequences author_order so the remaining values stay dense.
func (s *Store) RemoveAuthorFromDocument(ctx context.Context, bookID, authorID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT author_id FROM document_authors WHERE book_id = $1 FOR UPDATE`, bookID)
	if err != nil {
		return err
	}
	count := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if count <= 1 {
		return fmt.Errorf("%w: cannot remove the last author of book %d", ErrConstraint, bookID)
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM document_authors WHERE book_id = $1 AND author_id = $2`,
		bookID, authorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := resequence(ctx, tx, bookID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReorderAuthors replaces all author_order values for a book atomically.
// orderedAuthorIDs must be a permutation of the book's current author set.
func (s *Store) ReorderAuthors(ctx context.Context, bookID int64, orderedAuthorIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT author_id FROM document_authors WHERE book_id = $1 FOR UPDATE`, bookID)
	if err != nil {
		return err
	}
	current := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		current[id] = true
	}
	rows.Close()
	if len(orderedAuthorIDs) != len(current) {
		return fmt.Errorf("%w: reorder list has %d ids, book %d has %d authors",
			ErrConstraint, len(orderedAuthorIDs), bookID, len(current))
	}
	for _, id := range orderedAuthorIDs {
		if !current[id] {
			return fmt.Errorf("%w: author %d is not on book %d", ErrConstraint, id, bookID)
		}
		delete(current, id)
	}
	for i, id := range orderedAuthorIDs {
		if _, err := tx.Exec(ctx, `
			UPDATE document_authors SET author_order = $3
			WHERE book_id = $1 AND author_id = $2`, bookID, id, i); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AuthorsForDocument returns the book's authors ordered by author_order.
func (s *Store) AuthorsForDocument(ctx context.Context, bookID int64) ([]AuthorRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.name, a.site_url, da.author_order
		FROM document_authors da
		JOIN authors a ON a.id = da.author_id
		WHERE da.book_id = $1
		ORDER BY da.author_order ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuthorRef
	for rows.Next() {
		var r AuthorRef
		if err := rows.Scan(&r.ID, &r.Name, &r.SiteURL, &r.Order); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceDocumentAuthors swaps a book's author list for the given ordered
// names inside the caller's transaction. Used by the indexer so the swap
// commits together with the chunk replacement.
func ReplaceDocumentAuthors(ctx context.Context, tx pgx.Tx, bookID int64, authorNames []string) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM document_authors WHERE book_id = $1`, bookID); err != nil {
		return err
	}
	for i, raw := range authorNames {
		n := names.Normalize(raw)
		if n == "" {
			continue
		}
		var authorID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO authors (name)
			VALUES ($1)
			ON CONFLICT ((LOWER(name))) DO UPDATE SET updated_at = now()
			RETURNING id`, n).Scan(&authorID); err != nil {
			return fmt.Errorf("upsert author %q: %w", n, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_authors (book_id, author_id, author_order)
			VALUES ($1, $2, $3)
			ON CONFLICT (book_id, author_id) DO NOTHING`, bookID, authorID, i); err != nil {
			return err
		}
	}
	return resequence(ctx, tx, bookID)
}

// resequence rewrites author_order as 0..N-1 preserving the current order.
func resequence(ctx context.Context, tx pgx.Tx, bookID int64) error {
	_, err := tx.Exec(ctx, `
		WITH ranked AS (
			SELECT author_id,
			       ROW_NUMBER() OVER (ORDER BY author_order ASC, author_id ASC) - 1 AS new_order
			FROM document_authors WHERE book_id = $1
		)
		UPDATE document_authors da SET author_order = r.new_order
		FROM ranked r
		WHERE da.book_id = $1 AND da.author_id = r.author_id`, bookID)
	return err
}
