package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyShapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		query string
		class string
	}{
		{"DB2 journaling", "keyword"},
		{"RPG", "keyword"},
		{"How do I create a subprocedure in free-format RPG?", "procedural"},
		{"how to configure journaling", "procedural"},
		{"What does %subst( do in this statement?", "code"},
		{"show me the SELECT * FROM syntax example", "code"},
		{"What are the advantages of externally described files over program described files?", "question"},
	}
	for _, c := range cases {
		p := classify(c.query, 0.45, 0.65)
		assert.Equal(t, c.class, p.class, "query %q", c.query)
	}
}

func TestClassifyCeilingClampedToHardMax(t *testing.T) {
	t.Parallel()
	// A default above the hard max must never survive classification.
	p := classify("What are the advantages of journaling over commitment control in DB2?", 0.9, 0.65)
	assert.Equal(t, 0.65, p.ceiling)

	for _, q := range []string{"DB2", "how do i compile", "code example for %trim"} {
		p := classify(q, 0.45, 0.3)
		assert.LessOrEqual(t, p.ceiling, 0.3, "query %q", q)
	}
}

func TestClassifyMinKeepPositive(t *testing.T) {
	t.Parallel()
	for _, q := range []string{"a", "how do i x", "code", "a long natural question about things?"} {
		p := classify(q, 0.45, 0.65)
		assert.Greater(t, p.minKeep, 0, "query %q", q)
	}
}
