package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Jerry Fottral", Normalize("  Jerry   Fottral  "))
	assert.Equal(t, "A B", Normalize("A\t \nB"))
	assert.Equal(t, "", Normalize("   "))
}

func TestValid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		want bool
	}{
		{"Jerry Fottral", true},
		{"Alice Johnson", true},
		{"Unknown", false},
		{"anonymous", false},
		{"MC Press Publishing", false},
		{"Adobe Acrobat 9.0", false},
		{"ab", false},
		{"1234", false},
		{"IBM Corporation", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Valid(c.name), "name %q", c.name)
	}
}

func TestParseListDelimiters(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"Alice Johnson and Bob Smith", []string{"Alice Johnson", "Bob Smith"}},
		{"Alice Johnson, Bob Smith", []string{"Alice Johnson", "Bob Smith"}},
		{"Alice Johnson; Bob Smith; Carol White", []string{"Alice Johnson", "Bob Smith", "Carol White"}},
		{"Alice Johnson & Bob Smith", []string{"Alice Johnson", "Bob Smith"}},
		{"Jerry Fottral", []string{"Jerry Fottral"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseList(c.in), "input %q", c.in)
	}
}

func TestParseListDedupPreservesOrder(t *testing.T) {
	t.Parallel()
	got := ParseList("Bob Smith, alice johnson, Bob Smith, ALICE JOHNSON")
	assert.Equal(t, []string{"Bob Smith", "alice johnson"}, got)
}

func TestParseListFiltersInvalid(t *testing.T) {
	t.Parallel()
	got := ParseList("Alice Johnson and MC Press Publishing")
	assert.Equal(t, []string{"Alice Johnson"}, got)

	assert.Empty(t, ParseList("Unknown"))
	assert.Empty(t, ParseList(""))
}
