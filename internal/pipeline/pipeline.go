// Package pipeline wires the ingestion and query paths into the two calls
// external subsystems consume: Ingest and Answer.
package pipeline

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"mcpress/internal/answer"
	"mcpress/internal/bib"
	"mcpress/internal/config"
	"mcpress/internal/docstore"
	"mcpress/internal/embed"
	"mcpress/internal/index"
	"mcpress/internal/ingest"
	"mcpress/internal/ocr"
	"mcpress/internal/retrieve"
)

// Pipeline is the assembled core. Construction is owned by the process
// entry point; components receive their dependencies, they do not discover
// them.
type Pipeline struct {
	cfg      *config.Config
	bib      *bib.Store
	docs     *docstore.Store
	ingestor *ingest.Ingestor
	indexer  *index.Indexer
	answerer *answer.Answerer
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	ChunksCreated int      `json:"chunks_created"`
	Pages         int      `json:"pages"`
	Authors       []string `json:"authors"`
}

// New assembles the core on top of an opened pool. EnsureSchema runs for
// both stores.
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*Pipeline, error) {
	bibStore := bib.NewStore(pool)
	if err := bibStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	docStore := docstore.NewStore(pool, cfg.Embedding.Dimensions)
	if err := docStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	embedder := embed.NewClient(cfg.Embedding)
	var ocrEngine ocr.Engine
	if cfg.OCR.Enabled {
		ocrEngine = ocr.NewVisionClient(cfg.OCR)
	}
	ingestor := ingest.NewIngestor(cfg.Ingestion, ocrEngine, cfg.OCR.Enabled)
	indexer := index.NewIndexer(bibStore, docStore, embedder, cfg.Embedding.BatchSize)
	retriever := retrieve.NewRetriever(docStore, embedder, cfg.Retrieval)
	answerer := answer.NewAnswerer(retriever, bibStore, answer.NewOpenAIStreamer(cfg.LLM),
		cfg.LLM, cfg.Retrieval, cfg.ContextCharBudget())

	return &Pipeline{
		cfg:      cfg,
		bib:      bibStore,
		docs:     docStore,
		ingestor: ingestor,
		indexer:  indexer,
		answerer: answerer,
	}, nil
}

// Ingest runs the full ingestion path for one document: extraction,
// chunking, embedding, and the transactional swap of book, authors, and
// chunks. Idempotent by filename; an unchanged file hash short-circuits
// without re-embedding.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte, ov *ingest.Overrides) (*IngestResult, error) {
	res, err := p.ingestor.Ingest(ctx, filename, data, ov)
	if err != nil {
		return nil, err
	}

	if book, err := p.bib.BookByFilename(ctx, filename); err == nil &&
		book.FileHash != "" && book.FileHash == res.Hint.FileHash {
		keys, kerr := p.docs.ChunkKeys(ctx, filename)
		if kerr == nil && len(keys) > 0 {
			log.Info().Str("filename", filename).Msg("file hash unchanged, skipping re-index")
			return &IngestResult{
				ChunksCreated: len(keys),
				Pages:         res.Pages,
				Authors:       res.Hint.Authors,
			}, nil
		}
	} else if err != nil && !errors.Is(err, bib.ErrNotFound) {
		return nil, err
	}

	if err := p.indexer.Index(ctx, filename, res.Chunks, res.Hint); err != nil {
		return nil, err
	}
	return &IngestResult{
		ChunksCreated: len(res.Chunks),
		Pages:         res.Pages,
		Authors:       res.Hint.Authors,
	}, nil
}

// Answer streams a grounded answer for the question. See answer.Event for
// the stream contract.
func (p *Pipeline) Answer(ctx context.Context, question string) <-chan answer.Event {
	return p.answerer.Answer(ctx, question)
}

// MigrateLegacyAuthors exposes the bibliographic migration to operators.
func (p *Pipeline) MigrateLegacyAuthors(ctx context.Context) (*bib.MigrationReport, error) {
	return p.bib.MigrateLegacyAuthors(ctx)
}

// Bib exposes the bibliographic store for the admin surface.
func (p *Pipeline) Bib() *bib.Store { return p.bib }
