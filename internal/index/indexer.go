// Package index attaches embeddings to chunks and persists them together
// with the bibliographic upsert, atomically per document.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mcpress/internal/bib"
	"mcpress/internal/docstore"
	"mcpress/internal/embed"
	"mcpress/internal/ingest"
)

// ErrIndexFailed wraps persistence or embedding failures during indexing.
// Prior state is always intact when it is returned.
var ErrIndexFailed = errors.New("index: operation failed")

// Indexer owns the write path into both stores.
type Indexer struct {
	bib       *bib.Store
	docs      *docstore.Store
	embedder  embed.Embedder
	batchSize int

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewIndexer(bibStore *bib.Store, docStore *docstore.Store, embedder embed.Embedder, batchSize int) *Indexer {
	return &Indexer{
		bib:       bibStore,
		docs:      docStore,
		embedder:  embedder,
		batchSize: batchSize,
		inflight:  make(map[string]*sync.Mutex),
	}
}

// fileLock serializes concurrent re-indexing of the same filename. Last
// writer wins; the loser's chunks are never partially visible because each
// writer runs inside its own transaction.
func (ix *Indexer) fileLock(filename string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.inflight[filename]
	if !ok {
		l = &sync.Mutex{}
		ix.inflight[filename] = l
	}
	return l
}

// Index embeds the chunks and swaps in the new document state: book row
// upserted by filename (id preserved), authors replaced with the hint's
// ordered list (existing links are kept when the hint has no authors),
// prior chunks replaced by the new set. Either everything
// becomes visible or nothing does.
func (ix *Indexer) Index(ctx context.Context, filename string, chunks []ingest.Chunk, hint ingest.Hint) error {
	l := ix.fileLock(filename)
	l.Lock()
	defer l.Unlock()

	start := time.Now()
	contents := make([]string, len(chunks))
	for i := range chunks {
		contents[i] = chunks[i].Content
	}
	embeddings, err := embed.EmbedAll(ctx, ix.embedder, contents, ix.batchSize)
	if err != nil {
		return fmt.Errorf("%w: embedding: %v", ErrIndexFailed, err)
	}

	recs := make([]docstore.Record, len(chunks))
	for i, c := range chunks {
		recs[i] = docstore.Record{
			Filename:   filename,
			Content:    c.Content,
			PageNumber: c.PageNumber,
			ChunkIndex: c.ChunkIndex,
			Embedding:  embeddings[i],
			Metadata: docstore.Metadata{
				Type:     c.Type,
				Language: c.Language,
				OCR:      c.OCR,
			},
		}
	}

	tx, err := ix.bib.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrIndexFailed, err)
	}
	defer tx.Rollback(ctx)

	bookID, err := bib.UpsertBook(ctx, tx, bib.BookUpsert{
		Filename:     filename,
		Title:        hint.Title,
		Author:       strings.Join(hint.Authors, ", "),
		Category:     hint.Category,
		Subcategory:  hint.Subcategory,
		Description:  hint.Description,
		Tags:         hint.Tags,
		DocumentType: hint.DocumentType,
		MCPressURL:   hint.MCPressURL,
		ArticleURL:   hint.ArticleURL,
		TotalPages:   hint.TotalPages,
		FileHash:     hint.FileHash,
	})
	if err != nil {
		return fmt.Errorf("%w: book upsert: %v", ErrIndexFailed, err)
	}

	if len(hint.Authors) > 0 {
		if err := bib.ReplaceDocumentAuthors(ctx, tx, bookID, hint.Authors); err != nil {
			return fmt.Errorf("%w: authors: %v", ErrIndexFailed, err)
		}
	} else {
		log.Warn().Str("filename", filename).Msg("no authors extracted; keeping existing author links")
	}

	if err := ix.docs.ReplaceChunks(ctx, tx, filename, recs); err != nil {
		return fmt.Errorf("%w: chunks: %v", ErrIndexFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrIndexFailed, err)
	}
	log.Info().Str("filename", filename).Int64("book_id", bookID).
		Int("chunks", len(recs)).Dur("duration", time.Since(start)).
		Msg("document indexed")
	return nil
}
