// Package retrieve ranks stored chunks against a question and filters them
// through a query-shape-dependent distance ceiling.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mcpress/internal/config"
	"mcpress/internal/docstore"
	"mcpress/internal/embed"
	"mcpress/internal/observability"
)

// ErrRetrieveFailed wraps store or embedding failures during a query.
var ErrRetrieveFailed = errors.New("retrieve: query failed")

// relaxStep is how far the ceiling moves per relaxation round when the
// minimum keep count is not met.
const relaxStep = 0.05

// Searcher is the slice of the document store the retriever needs.
type Searcher interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]docstore.Chunk, error)
}

// Retriever turns questions into ranked, deduplicated, threshold-filtered
// chunk lists.
type Retriever struct {
	docs     Searcher
	embedder embed.Embedder
	cfg      config.RetrievalConfig
}

func NewRetriever(docs Searcher, embedder embed.Embedder, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{docs: docs, embedder: embedder, cfg: cfg}
}

// Retrieve embeds the query, pulls kCandidates nearest chunks, applies the
// adaptive threshold, collapses near-duplicates, and caps at maxSources.
// An empty result is a valid outcome for an out-of-corpus question.
func (r *Retriever) Retrieve(ctx context.Context, query string, kCandidates, maxSources int) ([]docstore.Chunk, error) {
	if kCandidates <= 0 {
		kCandidates = r.cfg.InitialCandidates
	}
	if maxSources <= 0 {
		maxSources = r.cfg.MaxSources
	}

	embStart := time.Now()
	vecs, err := r.embedder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return nil, fmt.Errorf("%w: query embedding: %v", ErrRetrieveFailed, err)
	}
	observability.RetrieveStageSeconds.WithLabelValues("embed").Observe(time.Since(embStart).Seconds())

	searchStart := time.Now()
	candidates, err := r.docs.SearchByEmbedding(ctx, vecs[0], kCandidates)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", ErrRetrieveFailed, err)
	}
	observability.RetrieveStageSeconds.WithLabelValues("search").Observe(time.Since(searchStart).Seconds())

	p := classify(query, r.cfg.DistanceCeiling, r.cfg.DistanceCeilingHardMax)
	kept := applyThreshold(candidates, p, r.cfg.DistanceCeilingHardMax)
	kept = dedupe(kept)
	if len(kept) > maxSources {
		kept = kept[:maxSources]
	}

	observability.RetrieveResultsTotal.Add(float64(len(kept)))
	log.Debug().Str("class", p.class).Float64("ceiling", p.ceiling).
		Int("candidates", len(candidates)).Int("kept", len(kept)).
		Msg("retrieval complete")
	return kept, nil
}

// applyThreshold admits candidates below the class ceiling, then relaxes
// the ceiling stepwise while fewer than minKeep survive. Relaxation stops
// at hardMax no matter what.
func applyThreshold(candidates []docstore.Chunk, p plan, hardMax float64) []docstore.Chunk {
	ceiling := p.ceiling
	for {
		var kept []docstore.Chunk
		for _, c := range candidates {
			if c.Distance <= ceiling {
				kept = append(kept, c)
			}
		}
		if len(kept) >= p.minKeep || len(kept) == len(candidates) || ceiling >= hardMax {
			return kept
		}
		ceiling += relaxStep
		if ceiling > hardMax {
			ceiling = hardMax
		}
	}
}

// dedupe collapses chunks sharing (filename, page) to the best-ranked
// representative. Candidates arrive in ascending distance order, so the
// first occurrence wins and rank order is preserved.
func dedupe(chunks []docstore.Chunk) []docstore.Chunk {
	type key struct {
		filename string
		page     int
	}
	seen := make(map[key]bool, len(chunks))
	var out []docstore.Chunk
	for _, c := range chunks {
		k := key{c.Filename, c.PageNumber}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
