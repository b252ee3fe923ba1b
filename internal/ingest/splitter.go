package ingest

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var sentenceTokenizer = sync.OnceValue(func() *sentences.DefaultSentenceTokenizer {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		// The embedded english training data is part of the binary; failure
		// to load it is a build defect, not a runtime condition.
		panic(err)
	}
	return t
})

// splitProse splits text toward target characters per chunk with overlap
// characters carried between consecutive chunks. Boundaries prefer
// paragraphs, then sentences, then words; only a single word longer than
// the target is ever hard-cut. The output is a pure function of the input
// and the two parameters.
func splitProse(text string, target, overlap int) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	if target <= 0 {
		target = 1000
	}
	if overlap < 0 || overlap >= target {
		overlap = 0
	}
	if len(text) <= target {
		return []string{text}
	}

	units := proseUnits(text, target)

	var chunks []string
	var cur strings.Builder
	flush := func() string {
		out := strings.TrimSpace(cur.String())
		if out != "" {
			chunks = append(chunks, out)
		}
		cur.Reset()
		return out
	}
	for _, u := range units {
		if cur.Len() > 0 && cur.Len()+1+len(u) > target {
			emitted := flush()
			if overlap > 0 && emitted != "" {
				cur.WriteString(overlapTail(emitted, overlap))
			}
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(u)
	}
	flush()
	return chunks
}

// proseUnits decomposes text into pieces each at most target characters:
// paragraphs, then sentences for oversize paragraphs, then word runs for
// oversize sentences.
func proseUnits(text string, target int) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= target {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= target {
				units = append(units, sent)
				continue
			}
			units = append(units, splitWords(sent, target)...)
		}
	}
	return units
}

func splitSentences(text string) []string {
	toks := sentenceTokenizer().Tokenize(text)
	if len(toks) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if s := strings.TrimSpace(t.Text); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitWords groups whitespace-separated words into runs of at most target
// characters. A single word beyond target is hard-cut.
func splitWords(text string, target int) []string {
	words := strings.Fields(text)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		for len(w) > target {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, w[:target])
			w = w[target:]
		}
		if w == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > target {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// overlapTail returns at most the last n characters of s, dropping
// everything up to and including the first space or newline in that window
// so the overlap starts at a word. A window with no space is kept whole.
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
