package answer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"mcpress/internal/docstore"
)

const systemPrompt = `You are a technical assistant answering questions about IBM i, RPG, DB2, and related topics using only the reference passages provided in the user message. Rules:
- Answer strictly from the passages. If they do not contain the answer, say so plainly.
- Cite the source title or filename when you draw on a passage.
- Preserve code exactly as written in the passages; never invent syntax.
- Be concise and direct.`

var baseEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
})

// countTokens measures text with the model tokenizer family used by the
// chat endpoint. Model-specific lookup falls back to cl100k_base; if no
// encoding data is available at all, a four-chars-per-token estimate keeps
// budget enforcement working.
func countTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc = baseEncoding()
	}
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// buildPrompt renders the retrieved chunks into the user message,
// byte-deterministically for a fixed chunk list. Passages are added in
// retrieval order until either the character budget or the token budget
// (model window minus reserved response tokens) would be exceeded. The
// first passage is always included, even when it alone exceeds a budget.
func buildPrompt(question string, chunks []docstore.Chunk, charBudget int, model string, tokenBudget int) (string, int) {
	var b strings.Builder
	b.WriteString("Reference passages:\n\n")
	used := 0
	included := 0
	for _, c := range chunks {
		passage := renderPassage(c)
		if used+len(passage) > charBudget && included > 0 {
			break
		}
		if tokenBudget > 0 && included > 0 {
			if countTokens(model, b.String()+passage) > tokenBudget {
				break
			}
		}
		b.WriteString(passage)
		used += len(passage)
		included++
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String(), included
}

func renderPassage(c docstore.Chunk) string {
	page := "N/A"
	if c.PageNumber > 0 {
		page = fmt.Sprintf("%d", c.PageNumber)
	}
	label := c.Metadata.Type
	if label == "" {
		label = "text"
	}
	return fmt.Sprintf("[source: %s, page %s, %s]\n%s\n\n", c.Filename, page, label, c.Content)
}
