// Package docstore persists typed chunks with their embeddings and serves
// cosine-distance lookups over the pgvector column.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Metadata is the free-form chunk annotation stored as JSONB.
type Metadata struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	OCR      bool   `json:"ocr,omitempty"`
}

// Record is a chunk ready for persistence.
type Record struct {
	Filename   string
	Content    string
	PageNumber int
	ChunkIndex int
	Embedding  []float32
	Metadata   Metadata
}

// Chunk is a stored chunk as returned by lookups. Distance is populated by
// similarity search (cosine, lower is closer).
type Chunk struct {
	ID         int64
	Filename   string
	Content    string
	PageNumber int
	ChunkIndex int
	Metadata   Metadata
	Distance   float64
}

// Store wraps the shared connection pool for chunk operations.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

func NewStore(pool *pgxpool.Pool, embeddingDim int) *Store {
	return &Store{pool: pool, dim: embeddingDim}
}

// EnsureSchema creates the chunks table with the declared vector dimension
// and an IVFFlat cosine index. Idempotent for a fixed dimension.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL,
			content TEXT NOT NULL,
			page_number INT NOT NULL DEFAULT 0,
			chunk_index INT NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (filename, page_number, chunk_index)
		)`, s.dim)); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx
		ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`); err != nil {
		return fmt.Errorf("create ivfflat index: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_filename_idx ON chunks (filename)`); err != nil {
		return fmt.Errorf("create filename index: %w", err)
	}
	return nil
}

// ReplaceChunks swaps the full chunk set for a filename inside the caller's
// transaction: prior chunks disappear and the new set appears atomically.
// Every embedding must match the declared dimension.
func (s *Store) ReplaceChunks(ctx context.Context, tx pgx.Tx, filename string, recs []Record) error {
	for i := range recs {
		if len(recs[i].Embedding) != s.dim {
			return fmt.Errorf("chunk %d of %s: embedding has %d dims, store declares %d",
				i, filename, len(recs[i].Embedding), s.dim)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("delete prior chunks for %s: %w", filename, err)
	}
	for i := range recs {
		r := &recs[i]
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %d of %s: %w", i, filename, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (filename, content, page_number, chunk_index, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
			r.Filename, r.Content, r.PageNumber, r.ChunkIndex,
			pgvector.NewVector(r.Embedding), string(md)); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", i, filename, err)
		}
	}
	return nil
}

// DeleteChunks removes every chunk for a filename.
func (s *Store) DeleteChunks(ctx context.Context, filename string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE filename = $1`, filename)
	return err
}

// SearchByEmbedding returns the k nearest chunks by cosine distance,
// ascending. Distance lives in [0, 2].
func (s *Store) SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("query embedding has %d dims, store declares %d", len(embedding), s.dim)
	}
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, content, page_number, chunk_index, metadata,
		       embedding <=> $1 AS distance
		FROM chunks
		ORDER BY embedding <=> $1 ASC
		LIMIT $2`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var md []byte
		if err := rows.Scan(&c.ID, &c.Filename, &c.Content, &c.PageNumber,
			&c.ChunkIndex, &md, &c.Distance); err != nil {
			return nil, err
		}
		if len(md) > 0 {
			if err := json.Unmarshal(md, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk %d metadata: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkKeys returns the (page_number, chunk_index) set for a filename in
// visibility order. Used for idempotency checks and tests.
func (s *Store) ChunkKeys(ctx context.Context, filename string) ([][2]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT page_number, chunk_index FROM chunks
		WHERE filename = $1
		ORDER BY page_number ASC, chunk_index ASC`, filename)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]int
	for rows.Next() {
		var p, c int
		if err := rows.Scan(&p, &c); err != nil {
			return nil, err
		}
		out = append(out, [2]int{p, c})
	}
	return out, rows.Err()
}
