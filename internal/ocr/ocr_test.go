package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeaningful(t *testing.T) {
	t.Parallel()
	assert.False(t, Meaningful("", 20))
	assert.False(t, Meaningful("   \n\t  ", 20))
	assert.False(t, Meaningful("short text", 20))
	assert.True(t, Meaningful("this transcription has plenty of characters", 20))
	// Whitespace does not count toward the threshold.
	assert.False(t, Meaningful(strings.Repeat("a ", 19), 20))
	assert.True(t, Meaningful(strings.Repeat("a ", 20), 20))
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", Normalize("  a\n b \t c "))
	assert.Equal(t, "", Normalize(" \n "))
}
