// Package answer composes grounded prompts from retrieved chunks, streams
// the model's response, and closes each stream with an enriched source list.
package answer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"mcpress/internal/bib"
	"mcpress/internal/config"
	"mcpress/internal/docstore"
	"mcpress/internal/observability"
	"mcpress/internal/retrieve"
)

// Enricher resolves bibliographic context per filename. bib.Store satisfies
// it; tests use fakes.
type Enricher interface {
	Enrich(ctx context.Context, filename string) (*bib.Enrichment, error)
}

// ChunkRetriever is the retrieval surface the answerer consumes.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, kCandidates, maxSources int) ([]docstore.Chunk, error)
}

// Answerer drives one question through retrieval, generation, and
// enrichment.
type Answerer struct {
	retriever  ChunkRetriever
	enricher   Enricher
	llm        Streamer
	llmCfg     config.LLMConfig
	retCfg     config.RetrievalConfig
	charBudget int
}

func NewAnswerer(r ChunkRetriever, e Enricher, llm Streamer, llmCfg config.LLMConfig, retCfg config.RetrievalConfig, charBudget int) *Answerer {
	return &Answerer{
		retriever:  r,
		enricher:   e,
		llm:        llm,
		llmCfg:     llmCfg,
		retCfg:     retCfg,
		charBudget: charBudget,
	}
}

// Answer returns a stream of events: token* then exactly one done or one
// error. Caller cancellation stops token emission promptly and ends the
// stream with neither terminal event. The channel is always closed.
func (a *Answerer) Answer(ctx context.Context, question string) <-chan Event {
	out := make(chan Event, 16)
	go a.run(ctx, question, out)
	return out
}

func (a *Answerer) run(ctx context.Context, question string, out chan<- Event) {
	defer close(out)

	chunks, err := a.retriever.Retrieve(ctx, question, a.retCfg.InitialCandidates, a.retCfg.MaxSources)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Caller cancellation: end the stream without a terminal event.
			return
		}
		a.emitError(ctx, out, KindRetrieveFailed, err)
		return
	}

	tokenBudget := 0
	if a.llmCfg.ContextWindow > 0 {
		tokenBudget = a.llmCfg.ContextWindow - a.llmCfg.MaxTokens
	}
	prompt, included := buildPrompt(question, chunks, a.charBudget, a.llmCfg.Model, tokenBudget)
	if included < len(chunks) {
		log.Debug().Int("retrieved", len(chunks)).Int("included", included).
			Msg("context budget trimmed passages")
	}
	// Sources reflect only the passages the model actually saw.
	chunks = chunks[:included]

	emitted := false
	streamErr := a.llm.Stream(ctx, systemPrompt, prompt, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case out <- Event{Type: EventToken, Content: delta}:
			emitted = true
			observability.AnswerTokensTotal.Inc()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if ctx.Err() != nil {
		// Cancelled or deadline-expired mid-stream: no done event, and any
		// enrichment work is skipped. Tokens already emitted are the
		// caller's to discard.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			a.emitError(ctx, out, KindLLMTimeout, ctx.Err())
		}
		return
	}
	if streamErr != nil {
		a.emitError(ctx, out, classifyStreamErr(streamErr, emitted), streamErr)
		return
	}

	sources := a.enrichAll(ctx, chunks)
	select {
	case out <- Event{
		Type:      EventDone,
		Sources:   sources,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}:
	case <-ctx.Done():
	}
}

// classifyStreamErr distinguishes a backend that never produced output
// from a stream that died partway through.
func classifyStreamErr(err error, emitted bool) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindLLMTimeout
	}
	if !emitted {
		return KindLLMUnavailable
	}
	return KindStreamAborted
}

func (a *Answerer) emitError(ctx context.Context, out chan<- Event, kind string, err error) {
	log.Error().Str("kind", kind).Err(err).Msg("answer stream failed")
	ev := Event{Type: EventError, Kind: kind, Message: err.Error()}
	// Prefer delivering the terminal event even when the context is already
	// done (deadline expiry must surface as Timeout, not silence).
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// enrichAll performs one bibliographic lookup per distinct filename and
// builds the source list in retrieval order. A failed lookup degrades that
// source to a stub; it never fails the stream.
func (a *Answerer) enrichAll(ctx context.Context, chunks []docstore.Chunk) []Source {
	cache := make(map[string]*bib.Enrichment)
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		page := pageValue(c.PageNumber)
		chunkType := c.Metadata.Type
		if chunkType == "" {
			chunkType = "text"
		}
		enr, seen := cache[c.Filename]
		if !seen {
			var err error
			enr, err = a.enricher.Enrich(ctx, c.Filename)
			if err != nil {
				if !errors.Is(err, bib.ErrNotFound) {
					log.Warn().Str("filename", c.Filename).Err(err).Msg("enrichment failed, using stub")
				} else {
					log.Warn().Str("filename", c.Filename).Msg("no book record for chunk, using stub")
				}
				observability.EnrichFallbacksTotal.Inc()
				enr = nil
			}
			cache[c.Filename] = enr
		}
		if enr == nil {
			sources = append(sources, stubSource(c.Filename, page, chunkType, c.Distance))
			continue
		}
		authors := enr.Authors
		if authors == nil {
			authors = []bib.AuthorRef{}
		}
		if len(authors) == 0 && enr.LegacyAuthor != "" {
			// Books that predate the normalized author graph still cite
			// their legacy byline, without author ids.
			authors = []bib.AuthorRef{{Name: enr.LegacyAuthor, Order: 0}}
		}
		sources = append(sources, Source{
			Filename:     c.Filename,
			Page:         page,
			Type:         chunkType,
			Distance:     c.Distance,
			Author:       enr.DisplayAuthor(),
			MCPressURL:   enr.MCPressURL,
			ArticleURL:   enr.ArticleURL,
			DocumentType: enr.DocumentType,
			Authors:      authors,
		})
	}
	return sources
}

// pageValue renders a page as its number, or "N/A" when the chunk has no
// page association.
func pageValue(page int) any {
	if page > 0 {
		return page
	}
	return "N/A"
}

var _ ChunkRetriever = (*retrieve.Retriever)(nil)
