package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpress/internal/config"
	"mcpress/internal/docstore"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeSearcher struct {
	chunks []docstore.Chunk
	err    error
}

func (f *fakeSearcher) SearchByEmbedding(_ context.Context, _ []float32, k int) ([]docstore.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.chunks) > k {
		return f.chunks[:k], nil
	}
	return f.chunks, nil
}

func testCfg() config.RetrievalConfig {
	return config.RetrievalConfig{
		InitialCandidates:      30,
		MaxSources:             12,
		DistanceCeiling:        0.45,
		DistanceCeilingHardMax: 0.65,
	}
}

func chunk(id int64, filename string, page int, dist float64) docstore.Chunk {
	return docstore.Chunk{
		ID: id, Filename: filename, PageNumber: page,
		Content: "content", Distance: dist,
		Metadata: docstore.Metadata{Type: "text"},
	}
}

func TestRetrieveCloseMatchesOnly(t *testing.T) {
	t.Parallel()
	// Three close chunks and a wall of noise: only the close ones survive,
	// in ascending distance order.
	chunks := []docstore.Chunk{
		chunk(1, "db2.pdf", 10, 0.15),
		chunk(2, "db2.pdf", 22, 0.20),
		chunk(3, "costs.pdf", 5, 0.25),
	}
	for i := 4; i < 44; i++ {
		chunks = append(chunks, chunk(int64(i), "noise.pdf", i, 0.92))
	}
	r := NewRetriever(&fakeSearcher{chunks: chunks}, &fakeEmbedder{}, testCfg())

	got, err := r.Retrieve(context.Background(), "DB2 cost savings", 30, 12)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Equal(t, int64(3), got[2].ID)
}

func TestRetrieveRelaxesToMinKeep(t *testing.T) {
	t.Parallel()
	// Nothing under the keyword ceiling (0.40), but enough under the hard
	// max: relaxation must still return at least minKeep chunks.
	chunks := []docstore.Chunk{
		chunk(1, "a.pdf", 1, 0.52),
		chunk(2, "b.pdf", 1, 0.58),
		chunk(3, "c.pdf", 1, 0.63),
	}
	r := NewRetriever(&fakeSearcher{chunks: chunks}, &fakeEmbedder{}, testCfg())

	got, err := r.Retrieve(context.Background(), "DB2 journaling", 30, 12)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(got), 2)
}

func TestRetrieveNeverExceedsHardMax(t *testing.T) {
	t.Parallel()
	chunks := []docstore.Chunk{
		chunk(1, "a.pdf", 1, 0.70),
		chunk(2, "b.pdf", 1, 0.85),
	}
	r := NewRetriever(&fakeSearcher{chunks: chunks}, &fakeEmbedder{}, testCfg())

	got, err := r.Retrieve(context.Background(), "DB2 journaling", 30, 12)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveCapsAtMaxSources(t *testing.T) {
	t.Parallel()
	var chunks []docstore.Chunk
	for i := 1; i <= 30; i++ {
		chunks = append(chunks, chunk(int64(i), "a.pdf", i, 0.10))
	}
	r := NewRetriever(&fakeSearcher{chunks: chunks}, &fakeEmbedder{}, testCfg())

	got, err := r.Retrieve(context.Background(), "What are the advantages of journaling over nothing at all?", 30, 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestRetrieveDedupesFilenamePage(t *testing.T) {
	t.Parallel()
	chunks := []docstore.Chunk{
		chunk(1, "a.pdf", 7, 0.10),
		chunk(2, "a.pdf", 7, 0.12), // same (filename, page): collapsed
		chunk(3, "a.pdf", 8, 0.14),
	}
	r := NewRetriever(&fakeSearcher{chunks: chunks}, &fakeEmbedder{}, testCfg())

	got, err := r.Retrieve(context.Background(), "What are the advantages of journaling over nothing at all?", 30, 12)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestRetrieveEmptyCorpusIsNotAnError(t *testing.T) {
	t.Parallel()
	r := NewRetriever(&fakeSearcher{}, &fakeEmbedder{}, testCfg())
	got, err := r.Retrieve(context.Background(), "anything", 30, 12)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	t.Parallel()
	r := NewRetriever(&fakeSearcher{}, &fakeEmbedder{err: errors.New("boom")}, testCfg())
	_, err := r.Retrieve(context.Background(), "anything", 30, 12)
	assert.ErrorIs(t, err, ErrRetrieveFailed)
}

func TestRetrieveStoreFailure(t *testing.T) {
	t.Parallel()
	r := NewRetriever(&fakeSearcher{err: errors.New("down")}, &fakeEmbedder{}, testCfg())
	_, err := r.Retrieve(context.Background(), "anything", 30, 12)
	assert.ErrorIs(t, err, ErrRetrieveFailed)
}
