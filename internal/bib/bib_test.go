package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSiteURL(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateSiteURL(""))
	assert.NoError(t, ValidateSiteURL("https://example.com/author"))
	assert.NoError(t, ValidateSiteURL("http://example.com"))
	assert.ErrorIs(t, ValidateSiteURL("ftp://example.com"), ErrConstraint)
	assert.ErrorIs(t, ValidateSiteURL("not a url"), ErrConstraint)
	assert.ErrorIs(t, ValidateSiteURL("javascript:alert(1)"), ErrConstraint)
}

func TestBookUpsertValidate(t *testing.T) {
	t.Parallel()
	ok := BookUpsert{Filename: "a.pdf", DocumentType: "book", MCPressURL: "https://mcpress.example/b"}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, BookUpsert{}.Validate(), ErrConstraint)
	assert.ErrorIs(t, BookUpsert{Filename: "a.pdf", DocumentType: "magazine"}.Validate(), ErrConstraint)
	assert.ErrorIs(t, BookUpsert{Filename: "a.pdf", MCPressURL: "example.com/b"}.Validate(), ErrConstraint)

	bad := "gopher://x"
	assert.ErrorIs(t, BookUpsert{Filename: "a.pdf", ArticleURL: &bad}.Validate(), ErrConstraint)
}

func TestDenseFromZero(t *testing.T) {
	t.Parallel()
	assert.True(t, denseFromZero(nil))
	assert.True(t, denseFromZero([]int{0}))
	assert.True(t, denseFromZero([]int{0, 1, 2, 3}))
	assert.False(t, denseFromZero([]int{1, 2}))
	assert.False(t, denseFromZero([]int{0, 2}))
	assert.False(t, denseFromZero([]int{0, 0, 1}))
}

func TestReconstructLegacy(t *testing.T) {
	t.Parallel()
	authors := []AuthorRef{
		{ID: 1, Name: "Alice Johnson", Order: 0},
		{ID: 2, Name: "Bob Smith", Order: 1},
	}
	assert.Equal(t, "Alice Johnson, Bob Smith", ReconstructLegacy(authors))
	assert.Equal(t, "", ReconstructLegacy(nil))
}

func TestEnrichmentDisplayAuthor(t *testing.T) {
	t.Parallel()
	e := &Enrichment{Authors: []AuthorRef{{Name: "Alice Johnson"}, {Name: "Bob Smith"}}}
	assert.Equal(t, "Alice Johnson, Bob Smith", e.DisplayAuthor())

	legacy := &Enrichment{LegacyAuthor: "Jerry Fottral"}
	assert.Equal(t, "Jerry Fottral", legacy.DisplayAuthor())

	empty := &Enrichment{}
	assert.Equal(t, "Unknown", empty.DisplayAuthor())
}
