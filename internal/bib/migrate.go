package bib

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"mcpress/internal/names"
)

// MigrationReport summarizes a legacy-author migration run. Violations are
// collected per book; a violation never aborts the batch.
type MigrationReport struct {
	BooksSeen     int
	BooksMigrated int
	BooksSkipped  int
	AuthorsLinked int
	Violations    []string
}

// MigrateLegacyAuthors walks every book whose legacy author field is
// populated and whose normalized author list is still empty, parses the
// field with the same delimiters the ingestor uses, and builds the
// document_authors rows in parse order. Books already normalized are left
// alone; the legacy field stays untouched as a read-only fallback.
func (s *Store) MigrateLegacyAuthors(ctx context.Context) (*MigrationReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.filename, b.author
		FROM books b
		WHERE b.author <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM document_authors da WHERE da.book_id = b.id
		  )
		ORDER BY b.id ASC`)
	if err != nil {
		return nil, err
	}
	type legacy struct {
		id       int64
		filename string
		author   string
	}
	var pending []legacy
	for rows.Next() {
		var l legacy
		if err := rows.Scan(&l.id, &l.filename, &l.author); err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rep := &MigrationReport{BooksSeen: len(pending)}
	for _, l := range pending {
		parsed := names.ParseList(l.author)
		if len(parsed) == 0 {
			rep.BooksSkipped++
			rep.Violations = append(rep.Violations,
				fmt.Sprintf("book %d (%s): legacy author %q produced no valid names", l.id, l.filename, l.author))
			continue
		}
		if err := s.migrateOne(ctx, l.id, parsed); err != nil {
			rep.BooksSkipped++
			rep.Violations = append(rep.Violations,
				fmt.Sprintf("book %d (%s): %v", l.id, l.filename, err))
			log.Warn().Int64("book_id", l.id).Str("filename", l.filename).Err(err).
				Msg("author migration failed for book")
			continue
		}
		rep.BooksMigrated++
		rep.AuthorsLinked += len(parsed)
	}

	if errs := s.verifyInvariants(ctx); len(errs) > 0 {
		rep.Violations = append(rep.Violations, errs...)
	}
	log.Info().Int("seen", rep.BooksSeen).Int("migrated", rep.BooksMigrated).
		Int("skipped", rep.BooksSkipped).Int("violations", len(rep.Violations)).
		Msg("legacy author migration complete")
	return rep, nil
}

func (s *Store) migrateOne(ctx context.Context, bookID int64, parsed []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := ReplaceDocumentAuthors(ctx, tx, bookID, parsed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// verifyInvariants checks the authorship invariants over the whole store:
// every book has at least one author row, orders are dense from zero, and
// no case-insensitive duplicate author names exist.
func (s *Store) verifyInvariants(ctx context.Context) []string {
	var out []string

	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.filename FROM books b
		WHERE NOT EXISTS (SELECT 1 FROM document_authors da WHERE da.book_id = b.id)`)
	if err == nil {
		for rows.Next() {
			var id int64
			var fn string
			if rows.Scan(&id, &fn) == nil {
				out = append(out, fmt.Sprintf("book %d (%s): no authors", id, fn))
			}
		}
		rows.Close()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT book_id, array_agg(author_order ORDER BY author_order) AS orders
		FROM document_authors GROUP BY book_id`)
	if err == nil {
		for rows.Next() {
			var bookID int64
			var raw []int32
			if rows.Scan(&bookID, &raw) != nil {
				continue
			}
			orders := make([]int, len(raw))
			for i, o := range raw {
				orders[i] = int(o)
			}
			if !denseFromZero(orders) {
				out = append(out, fmt.Sprintf("book %d: author_order not dense: %v", bookID, orders))
			}
		}
		rows.Close()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT LOWER(name), COUNT(*) FROM authors GROUP BY LOWER(name) HAVING COUNT(*) > 1`)
	if err == nil {
		for rows.Next() {
			var name string
			var n int
			if rows.Scan(&name, &n) == nil {
				out = append(out, fmt.Sprintf("author %q: %d duplicate rows", name, n))
			}
		}
		rows.Close()
	}
	return out
}

// denseFromZero reports whether sorted orders equal 0..N-1.
func denseFromZero(orders []int) bool {
	for i, o := range orders {
		if o != i {
			return false
		}
	}
	return true
}

// ReconstructLegacy joins ordered author names the way the legacy field
// stored them, for migration spot checks.
func ReconstructLegacy(authors []AuthorRef) string {
	parts := make([]string, len(authors))
	for i, a := range authors {
		parts[i] = a.Name
	}
	return strings.Join(parts, ", ")
}
