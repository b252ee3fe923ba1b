package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceChunksRejectsWrongDimension(t *testing.T) {
	t.Parallel()
	s := NewStore(nil, 3)
	recs := []Record{{
		Filename:  "a.pdf",
		Content:   "x",
		Embedding: []float32{1, 2}, // 2 dims, store declares 3
	}}
	err := s.ReplaceChunks(context.Background(), nil, "a.pdf", recs)
	assert.ErrorContains(t, err, "2 dims")
}

func TestSearchByEmbeddingRejectsWrongDimension(t *testing.T) {
	t.Parallel()
	s := NewStore(nil, 384)
	_, err := s.SearchByEmbedding(context.Background(), []float32{1, 2, 3}, 10)
	assert.ErrorContains(t, err, "3 dims")
}
