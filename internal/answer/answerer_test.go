package answer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpress/internal/bib"
	"mcpress/internal/config"
	"mcpress/internal/docstore"
)

type fakeRetriever struct {
	chunks []docstore.Chunk
	err    error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _, _ int) ([]docstore.Chunk, error) {
	return f.chunks, f.err
}

type fakeEnricher struct {
	byFilename map[string]*bib.Enrichment
	err        error
}

func (f *fakeEnricher) Enrich(_ context.Context, filename string) (*bib.Enrichment, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.byFilename[filename]
	if !ok {
		return nil, bib.ErrNotFound
	}
	return e, nil
}

// fakeStreamer emits fixed deltas; when block is set it keeps emitting
// until the delta callback reports an error (cancellation).
type fakeStreamer struct {
	deltas []string
	err    error
	block  bool
}

func (f *fakeStreamer) Stream(ctx context.Context, _, _ string, onDelta func(string) error) error {
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	if f.block {
		for {
			if err := onDelta("more "); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
	return f.err
}

func testChunk(filename string, page int, dist float64, chunkType string) docstore.Chunk {
	return docstore.Chunk{
		Filename: filename, PageNumber: page, Distance: dist,
		Content: "passage content", Metadata: docstore.Metadata{Type: chunkType},
	}
}

func testLLMCfg() config.LLMConfig {
	return config.LLMConfig{Model: "gpt-4o-mini", Temperature: 0, MaxTokens: 256, ContextWindow: 8192}
}

func testRetCfg() config.RetrievalConfig {
	return config.RetrievalConfig{InitialCandidates: 30, MaxSources: 12, DistanceCeiling: 0.45, DistanceCeilingHardMax: 0.65}
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestAnswerTokenOrderThenDone(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("b.pdf", 3, 0.2, "text")}}
	enr := &fakeEnricher{byFilename: map[string]*bib.Enrichment{
		"b.pdf": {Title: "Some Book", DocumentType: "book", MCPressURL: "https://mcpress.example/b",
			Authors: []bib.AuthorRef{{ID: 1, Name: "Jerry Fottral", Order: 0}}},
	}}
	a := NewAnswerer(ret, enr, &fakeStreamer{deltas: []string{"Hello", " ", "world"}},
		testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "what?"))
	require.Len(t, events, 4)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, "Hello", events[0].Content)
	assert.Equal(t, " ", events[1].Content)
	assert.Equal(t, "world", events[2].Content)

	done := events[3]
	assert.Equal(t, EventDone, done.Type)
	require.Len(t, done.Sources, 1)
	assert.Equal(t, "b.pdf", done.Sources[0].Filename)
	assert.Equal(t, "Jerry Fottral", done.Sources[0].Author)
	assert.NotEmpty(t, done.Timestamp)
	_, err := time.Parse(time.RFC3339, done.Timestamp)
	assert.NoError(t, err)
}

func TestAnswerEnrichmentStubForOrphanChunk(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("orphan.pdf", 4, 0.3, "text")}}
	enr := &fakeEnricher{byFilename: map[string]*bib.Enrichment{}}
	a := NewAnswerer(ret, enr, &fakeStreamer{deltas: []string{"answer"}}, testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	require.NotEmpty(t, events)
	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type, "a broken lookup must not produce an error event")
	require.Len(t, done.Sources, 1)
	s := done.Sources[0]
	assert.Equal(t, "Unknown", s.Author)
	assert.Empty(t, s.Authors)
	assert.Equal(t, "book", s.DocumentType)
	assert.Equal(t, "", s.MCPressURL)
	assert.Nil(t, s.ArticleURL)
}

func TestAnswerArticleVsBookURLs(t *testing.T) {
	t.Parallel()
	artURL := "https://www.mcpressonline.com/a1"
	ret := &fakeRetriever{chunks: []docstore.Chunk{
		testChunk("book1.pdf", 1, 0.1, "text"),
		testChunk("art1.pdf", 2, 0.2, "text"),
	}}
	enr := &fakeEnricher{byFilename: map[string]*bib.Enrichment{
		"book1.pdf": {Title: "B1", DocumentType: "book", MCPressURL: "https://mcpress.example/b1",
			Authors: []bib.AuthorRef{{ID: 1, Name: "A", Order: 0}}},
		"art1.pdf": {Title: "A1", DocumentType: "article", ArticleURL: &artURL,
			Authors: []bib.AuthorRef{{ID: 2, Name: "B", Order: 0}}},
	}}
	a := NewAnswerer(ret, enr, &fakeStreamer{deltas: []string{"x"}}, testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	require.Len(t, done.Sources, 2)

	book := done.Sources[0]
	assert.Equal(t, "https://mcpress.example/b1", book.MCPressURL)
	assert.Nil(t, book.ArticleURL)
	assert.Equal(t, "book", book.DocumentType)

	art := done.Sources[1]
	assert.Equal(t, "", art.MCPressURL)
	require.NotNil(t, art.ArticleURL)
	assert.Equal(t, artURL, *art.ArticleURL)
	assert.Equal(t, "article", art.DocumentType)
}

func TestAnswerLegacyAuthorFallback(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("old.pdf", 9, 0.1, "text")}}
	enr := &fakeEnricher{byFilename: map[string]*bib.Enrichment{
		"old.pdf": {Title: "Old Book", DocumentType: "book", LegacyAuthor: "Paul Tuohy"},
	}}
	a := NewAnswerer(ret, enr, &fakeStreamer{deltas: []string{"x"}}, testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	require.Len(t, done.Sources, 1)
	s := done.Sources[0]
	assert.Equal(t, "Paul Tuohy", s.Author)
	require.Len(t, s.Authors, 1)
	assert.Equal(t, "Paul Tuohy", s.Authors[0].Name)
	assert.Zero(t, s.Authors[0].ID)
}

func TestAnswerCancellationStopsTokens(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("b.pdf", 1, 0.1, "text")}}
	enr := &fakeEnricher{byFilename: map[string]*bib.Enrichment{}}
	a := NewAnswerer(ret, enr, &fakeStreamer{block: true}, testLLMCfg(), testRetCfg(), 8000)

	ch := a.Answer(ctx, "q")
	seen := 0
	for ev := range ch {
		require.Equal(t, EventToken, ev.Type, "no done or error after cancellation")
		seen++
		if seen == 5 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, seen, 5)
	cancel()
}

func TestAnswerRetrieveFailure(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{err: errors.New("store down")}
	a := NewAnswerer(ret, &fakeEnricher{}, &fakeStreamer{}, testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, KindRetrieveFailed, events[0].Kind)
}

func TestAnswerStreamFailureEmitsSingleError(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("b.pdf", 1, 0.1, "text")}}
	a := NewAnswerer(ret, &fakeEnricher{}, &fakeStreamer{deltas: []string{"partial"}, err: errors.New("connection reset")},
		testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	require.Len(t, events, 2)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, KindStreamAborted, events[1].Kind)
}

func TestAnswerBackendDownBeforeFirstToken(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{chunks: []docstore.Chunk{testChunk("b.pdf", 1, 0.1, "text")}}
	a := NewAnswerer(ret, &fakeEnricher{}, &fakeStreamer{err: errors.New("connection refused")},
		testLLMCfg(), testRetCfg(), 8000)

	events := collect(a.Answer(context.Background(), "q"))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, KindLLMUnavailable, events[0].Kind)
}

func TestSourceJSONShape(t *testing.T) {
	t.Parallel()
	s := stubSource("orphan.pdf", "N/A", "text", 0.42)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	js := string(b)
	assert.Contains(t, js, `"page":"N/A"`)
	assert.Contains(t, js, `"mc_press_url":""`)
	assert.Contains(t, js, `"article_url":null`)
	assert.Contains(t, js, `"authors":[]`)
	assert.Contains(t, js, `"document_type":"book"`)

	withPage := stubSource("x.pdf", 12, "code", 0.1)
	b, err = json.Marshal(withPage)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"page":12`)
}
