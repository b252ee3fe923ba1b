package ingest

import (
	"regexp"
	"strings"
)

// segment is a typed region of page text before chunking.
type segment struct {
	kind     string // TypeText or TypeCode
	text     string
	language string
}

var fenceRe = regexp.MustCompile("(?m)^```([A-Za-z0-9+-]*)\\s*$")

// languageKeywords maps a language label to tokens that mark its code. The
// corpus is heavy on IBM i material, so RPG, CL, and SQL weigh in beside
// the mainstream languages.
var languageKeywords = map[string][]string{
	"rpg":    {"dcl-s", "dcl-f", "dcl-ds", "dcl-proc", "eval", "endif", "enddo", "chain", "setll", "reade", "%trim", "%subst", "ctl-opt"},
	"cl":     {"pgm", "endpgm", "dcl ", "chgvar", "sndpgmmsg", "rtvjoba", "crtdtaara"},
	"sql":    {"select ", "insert into", "update ", "delete from", "create table", "group by", "order by", "inner join", "left join"},
	"go":     {"func ", "package ", ":= ", "go func", "defer ", "chan "},
	"python": {"def ", "import ", "elif", "self.", "print("},
	"java":   {"public class", "private ", "void ", "extends ", "implements "},
}

// codeLineRe matches lines that carry programming punctuation uncommon in
// prose.
var codeLineRe = regexp.MustCompile(`[;{}]\s*$|:=|=>|\(\)|^\s{4,}\S|^\t`)

// detectSegments splits page text into prose and code regions. Fenced
// blocks always win; unfenced regions are classified block-by-block on
// indentation and keyword density. Adjacent prose blocks merge back
// together so the prose splitter sees whole paragraphs.
func detectSegments(text string) []segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var segs []segment
	for _, region := range splitFenced(text) {
		if region.kind == TypeCode {
			segs = append(segs, region)
			continue
		}
		segs = append(segs, classifyBlocks(region.text)...)
	}
	return segs
}

// splitFenced carves out ``` fenced blocks with their optional language
// label. Text without fences comes back as a single prose region.
func splitFenced(text string) []segment {
	locs := fenceRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) < 2 {
		return []segment{{kind: TypeText, text: text}}
	}
	var segs []segment
	pos := 0
	for i := 0; i+1 < len(locs); i += 2 {
		opening, closing := locs[i], locs[i+1]
		if before := text[pos:opening[0]]; strings.TrimSpace(before) != "" {
			segs = append(segs, segment{kind: TypeText, text: before})
		}
		lang := strings.ToLower(text[opening[2]:opening[3]])
		body := strings.Trim(text[opening[1]:closing[0]], "\n")
		if body != "" {
			segs = append(segs, segment{kind: TypeCode, text: body, language: lang})
		}
		pos = closing[1]
	}
	if rest := text[pos:]; strings.TrimSpace(rest) != "" {
		segs = append(segs, segment{kind: TypeText, text: rest})
	}
	return segs
}

// classifyBlocks walks blank-line-separated blocks, tagging each as code or
// prose and merging consecutive prose blocks.
func classifyBlocks(text string) []segment {
	blocks := strings.Split(text, "\n\n")
	var segs []segment
	var prose []string
	flushProse := func() {
		if len(prose) > 0 {
			segs = append(segs, segment{kind: TypeText, text: strings.Join(prose, "\n\n")})
			prose = nil
		}
	}
	for _, b := range blocks {
		if strings.TrimSpace(b) == "" {
			continue
		}
		if looksLikeCode(b) {
			flushProse()
			segs = append(segs, segment{kind: TypeCode, text: strings.Trim(b, "\n"), language: guessLanguage(b)})
		} else {
			prose = append(prose, strings.TrimSpace(b))
		}
	}
	flushProse()
	return segs
}

// looksLikeCode requires at least three lines and either a dominant indent
// run or dense programming punctuation / keywords.
func looksLikeCode(block string) bool {
	lines := nonBlankLines(block)
	if len(lines) < 3 {
		return false
	}
	indented, punctuated := 0, 0
	for _, ln := range lines {
		if strings.HasPrefix(ln, "    ") || strings.HasPrefix(ln, "\t") {
			indented++
		}
		if codeLineRe.MatchString(ln) {
			punctuated++
		}
	}
	if float64(indented)/float64(len(lines)) >= 0.8 {
		return true
	}
	if float64(punctuated)/float64(len(lines)) >= 0.5 {
		return true
	}
	return keywordDensity(block) >= 0.25
}

func keywordDensity(block string) float64 {
	low := strings.ToLower(block)
	lines := nonBlankLines(block)
	hits := 0
	for _, kws := range languageKeywords {
		for _, kw := range kws {
			hits += strings.Count(low, kw)
		}
	}
	return float64(hits) / float64(len(lines))
}

// guessLanguage picks the label with the most keyword hits, or empty when
// nothing stands out.
func guessLanguage(block string) string {
	low := strings.ToLower(block)
	best, bestHits := "", 0
	for lang, kws := range languageKeywords {
		hits := 0
		for _, kw := range kws {
			hits += strings.Count(low, kw)
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && lang < best) {
			best, bestHits = lang, hits
		}
	}
	if bestHits == 0 {
		return ""
	}
	return best
}

// splitCode groups code lines into blocks of at most max characters,
// cutting only at line boundaries so no token is ever split. A single line
// longer than max stays whole in a block of its own.
func splitCode(text string, target int) []string {
	if target <= 0 {
		target = 1000
	}
	max := target * 2
	if len(text) <= max {
		return []string{text}
	}
	lines := strings.Split(text, "\n")
	var out []string
	var cur strings.Builder
	for _, ln := range lines {
		if cur.Len() > 0 && cur.Len()+1+len(ln) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(ln)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func nonBlankLines(block string) []string {
	var out []string
	for _, ln := range strings.Split(block, "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}
