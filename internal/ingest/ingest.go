// Package ingest turns a PDF byte stream into ordered, typed chunks plus a
// bibliographic hint record for the indexer.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mcpress/internal/config"
	"mcpress/internal/observability"
	"mcpress/internal/ocr"
)

var (
	// ErrTooLarge rejects uploads over the configured limit before extraction.
	ErrTooLarge = errors.New("ingest: file exceeds upload limit")
	// ErrEmpty means extraction produced zero chunks.
	ErrEmpty = errors.New("ingest: no extractable content")
	// ErrParse means the PDF could not be opened at all.
	ErrParse = errors.New("ingest: unreadable pdf")
)

// Chunk types.
const (
	TypeText  = "text"
	TypeCode  = "code"
	TypeImage = "image"
)

// ocrMinChars is the non-whitespace threshold below which OCR output is
// considered noise and the image dropped.
const ocrMinChars = 20

// Chunk is one typed passage in document order.
type Chunk struct {
	Type       string
	Content    string
	PageNumber int
	ChunkIndex int
	Language   string
	OCR        bool
}

// Hint carries the bibliographic fields discovered during extraction,
// merged with any caller overrides.
type Hint struct {
	Title        string
	Authors      []string
	DocumentType string
	Category     string
	Subcategory  string
	Description  string
	Tags         string
	MCPressURL   string
	ArticleURL   *string
	TotalPages   int
	FileHash     string
}

// Overrides are caller-supplied metadata that beat anything extracted from
// the document.
type Overrides struct {
	Title        string
	Authors      []string
	DocumentType string
	Category     string
	Subcategory  string
	Description  string
	Tags         string
	MCPressURL   string
	ArticleURL   *string
}

// Result is the full output of one ingestion.
type Result struct {
	Chunks []Chunk
	Hint   Hint
	Pages  int
}

// Ingestor converts PDFs into chunks. Safe for concurrent use.
type Ingestor struct {
	cfg        config.IngestionConfig
	ocrEngine  ocr.Engine
	ocrEnabled bool
}

func NewIngestor(cfg config.IngestionConfig, engine ocr.Engine, ocrEnabled bool) *Ingestor {
	return &Ingestor{cfg: cfg, ocrEngine: engine, ocrEnabled: ocrEnabled && engine != nil}
}

// Ingest extracts, types, and splits the document. Chunk boundaries are a
// pure function of the input bytes and the splitter configuration, so
// re-ingesting the same file yields identical chunks in identical order.
func (ing *Ingestor) Ingest(ctx context.Context, filename string, data []byte, ov *Overrides) (*Result, error) {
	start := time.Now()
	if ing.cfg.MaxUploadBytes > 0 && int64(len(data)) > ing.cfg.MaxUploadBytes {
		observability.IngestDocsTotal.WithLabelValues("too_large").Inc()
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), ing.cfg.MaxUploadBytes)
	}

	doc, err := extractDocument(ctx, data, ing.cfg.MaxWorkers)
	if err != nil {
		observability.IngestDocsTotal.WithLabelValues("parse_failed").Inc()
		return nil, err
	}
	observability.IngestStageSeconds.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	splitStart := time.Now()
	chunks := ing.buildChunks(ctx, filename, doc)
	observability.IngestStageSeconds.WithLabelValues("split").Observe(time.Since(splitStart).Seconds())

	if len(chunks) == 0 {
		observability.IngestDocsTotal.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("%w: %s", ErrEmpty, filename)
	}
	for _, c := range chunks {
		observability.IngestChunksTotal.WithLabelValues(c.Type).Inc()
	}

	hint := buildHint(doc, ov)
	sum := sha256.Sum256(data)
	hint.FileHash = hex.EncodeToString(sum[:])
	hint.TotalPages = doc.totalPages

	observability.IngestDocsTotal.WithLabelValues("ok").Inc()
	log.Info().Str("filename", filename).Int("pages", doc.totalPages).
		Int("chunks", len(chunks)).Strs("authors", hint.Authors).
		Dur("duration", time.Since(start)).Msg("document ingested")
	return &Result{Chunks: chunks, Hint: hint, Pages: doc.totalPages}, nil
}

// buildChunks types and splits every page in document order. Chunk indexes
// are dense per page: prose and code chunks first in text order, then any
// image chunks that survive the OCR threshold.
func (ing *Ingestor) buildChunks(ctx context.Context, filename string, doc *document) []Chunk {
	var chunks []Chunk
	for _, page := range doc.pages {
		idx := 0
		for _, seg := range detectSegments(page.text) {
			switch seg.kind {
			case TypeCode:
				for _, block := range splitCode(seg.text, ing.cfg.ChunkTargetChars) {
					chunks = append(chunks, Chunk{
						Type:       TypeCode,
						Content:    block,
						PageNumber: page.number,
						ChunkIndex: idx,
						Language:   seg.language,
					})
					idx++
				}
			default:
				for _, piece := range splitProse(seg.text, ing.cfg.ChunkTargetChars, ing.cfg.ChunkOverlapChars) {
					chunks = append(chunks, Chunk{
						Type:       TypeText,
						Content:    piece,
						PageNumber: page.number,
						ChunkIndex: idx,
					})
					idx++
				}
			}
		}
		if !ing.ocrEnabled {
			continue
		}
		for _, img := range page.images {
			text, err := ing.ocrEngine.Extract(ctx, img.mimeType, img.data)
			if err != nil {
				log.Warn().Err(err).Str("filename", filename).Int("page", page.number).
					Msg("ocr failed, dropping image")
				continue
			}
			if !ocr.Meaningful(text, ocrMinChars) {
				continue
			}
			chunks = append(chunks, Chunk{
				Type:       TypeImage,
				Content:    text,
				PageNumber: page.number,
				ChunkIndex: idx,
				OCR:        true,
			})
			idx++
		}
	}
	return chunks
}

// buildHint merges extracted metadata with caller overrides; overrides win.
func buildHint(doc *document, ov *Overrides) Hint {
	h := Hint{
		Title:        doc.title,
		Authors:      extractAuthors(doc.metaAuthor, doc.firstPages(2)),
		DocumentType: "book",
	}
	if ov == nil {
		return h
	}
	if ov.Title != "" {
		h.Title = ov.Title
	}
	if len(ov.Authors) > 0 {
		h.Authors = ov.Authors
	}
	if ov.DocumentType != "" {
		h.DocumentType = ov.DocumentType
	}
	h.Category = ov.Category
	h.Subcategory = ov.Subcategory
	h.Description = ov.Description
	h.Tags = ov.Tags
	h.MCPressURL = ov.MCPressURL
	h.ArticleURL = ov.ArticleURL
	return h
}
