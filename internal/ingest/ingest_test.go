package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpress/internal/config"
)

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Extract(_ context.Context, _ string, _ []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func testIngestCfg() config.IngestionConfig {
	return config.IngestionConfig{
		ChunkTargetChars:  1000,
		ChunkOverlapChars: 200,
		MaxUploadBytes:    1 << 20,
		MaxWorkers:        2,
	}
}

func TestIngestRejectsOversizeBeforeExtraction(t *testing.T) {
	t.Parallel()
	cfg := testIngestCfg()
	cfg.MaxUploadBytes = 10
	ing := NewIngestor(cfg, nil, false)
	_, err := ing.Ingest(context.Background(), "big.pdf", make([]byte, 11), nil)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestIngestRejectsGarbage(t *testing.T) {
	t.Parallel()
	ing := NewIngestor(testIngestCfg(), nil, false)
	_, err := ing.Ingest(context.Background(), "junk.pdf", []byte("this is not a pdf"), nil)
	assert.ErrorIs(t, err, ErrParse)
}

func TestBuildChunksTypesAndOrder(t *testing.T) {
	t.Parallel()
	engine := &fakeOCR{text: "A diagram label with more than twenty characters of text."}
	ing := NewIngestor(testIngestCfg(), engine, true)
	doc := &document{
		totalPages: 2,
		pages: []pageContent{
			{
				number: 1,
				text:   "Plain prose on page one.\n\n    dcl-s total packed(9:2);\n    eval total = 0;\n    chain key file;\n",
				images: []pageImage{{data: []byte{1}, mimeType: "image/png"}},
			},
			{number: 2, text: "More prose on page two."},
		},
	}
	chunks := ing.buildChunks(context.Background(), "t.pdf", doc)
	require.Len(t, chunks, 4)

	assert.Equal(t, TypeText, chunks[0].Type)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 0, chunks[0].ChunkIndex)

	assert.Equal(t, TypeCode, chunks[1].Type)
	assert.Equal(t, "rpg", chunks[1].Language)
	assert.Equal(t, 1, chunks[1].ChunkIndex)

	assert.Equal(t, TypeImage, chunks[2].Type)
	assert.True(t, chunks[2].OCR)
	assert.Equal(t, 2, chunks[2].ChunkIndex)
	assert.Equal(t, 1, engine.calls)

	assert.Equal(t, TypeText, chunks[3].Type)
	assert.Equal(t, 2, chunks[3].PageNumber)
	assert.Equal(t, 0, chunks[3].ChunkIndex)
}

func TestBuildChunksDropsTrivialOCR(t *testing.T) {
	t.Parallel()
	engine := &fakeOCR{text: "tiny"}
	ing := NewIngestor(testIngestCfg(), engine, true)
	doc := &document{
		totalPages: 1,
		pages: []pageContent{{
			number: 1,
			text:   "Some prose.",
			images: []pageImage{{data: []byte{1}, mimeType: "image/png"}},
		}},
	}
	chunks := ing.buildChunks(context.Background(), "t.pdf", doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeText, chunks[0].Type)
}

func TestBuildChunksOCRFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	engine := &fakeOCR{err: errors.New("vision endpoint down")}
	ing := NewIngestor(testIngestCfg(), engine, true)
	doc := &document{
		totalPages: 1,
		pages: []pageContent{{
			number: 1,
			text:   "Some prose.",
			images: []pageImage{{data: []byte{1}, mimeType: "image/png"}},
		}},
	}
	chunks := ing.buildChunks(context.Background(), "t.pdf", doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeText, chunks[0].Type)
}

func TestBuildChunksOCRDisabled(t *testing.T) {
	t.Parallel()
	engine := &fakeOCR{text: strings.Repeat("text ", 20)}
	ing := NewIngestor(testIngestCfg(), engine, false)
	doc := &document{
		totalPages: 1,
		pages: []pageContent{{
			number: 1,
			text:   "Some prose.",
			images: []pageImage{{data: []byte{1}, mimeType: "image/png"}},
		}},
	}
	chunks := ing.buildChunks(context.Background(), "t.pdf", doc)
	require.Len(t, chunks, 1)
	assert.Zero(t, engine.calls)
}

func TestBuildChunksDeterministic(t *testing.T) {
	t.Parallel()
	ing := NewIngestor(testIngestCfg(), nil, false)
	doc := &document{
		totalPages: 1,
		pages: []pageContent{{
			number: 1,
			text:   strings.Repeat("A sentence of prose that repeats to force splitting. ", 60),
		}},
	}
	a := ing.buildChunks(context.Background(), "t.pdf", doc)
	b := ing.buildChunks(context.Background(), "t.pdf", doc)
	assert.Equal(t, a, b)
}
