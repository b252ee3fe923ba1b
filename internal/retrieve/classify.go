package retrieve

import (
	"regexp"
	"strings"
)

// queryClass couples a recognizer with the distance ceiling and the minimum
// number of candidates the retriever tries to keep for that shape of query.
type queryClass struct {
	name    string
	match   func(q string) bool
	ceiling float64
	minKeep int
}

var (
	proceduralRe = regexp.MustCompile(`(?i)^\s*(how\s+(do|can|would|should)\s+i|how\s+to)\b`)
	codeTokenRe  = regexp.MustCompile(`(?i)(%[a-z]+\(|dcl-[a-z]+|select\s+.+\s+from|:=|\bfunc\b|\bendif\b|\bsqlrpgle\b|\(\))`)
	codeWordRe   = regexp.MustCompile(`(?i)\b(code|syntax|snippet|example|compile|statement)\b`)
)

// classTable is evaluated in order; the first match wins and the last row
// always matches. Ceilings here are defaults that the planner clamps to the
// configured hard maximum.
var classTable = []queryClass{
	{
		name:    "code",
		match:   func(q string) bool { return codeTokenRe.MatchString(q) || codeWordRe.MatchString(q) },
		ceiling: 0.55,
		minKeep: 3,
	},
	{
		name:    "procedural",
		match:   func(q string) bool { return proceduralRe.MatchString(q) },
		ceiling: 0.50,
		minKeep: 4,
	},
	{
		name: "keyword",
		match: func(q string) bool {
			return len(strings.Fields(q)) <= 3 && !strings.Contains(q, "?")
		},
		ceiling: 0.40,
		minKeep: 2,
	},
	{
		name:    "question",
		match:   func(string) bool { return true },
		ceiling: 0, // filled from the configured default
		minKeep: 3,
	},
}

// plan is the resolved retrieval parameters for one query.
type plan struct {
	class   string
	ceiling float64
	minKeep int
}

// classify resolves the query's plan. The ceiling never exceeds hardMax:
// that bound is a safety property, not a tuning knob.
func classify(query string, defaultCeiling, hardMax float64) plan {
	q := strings.TrimSpace(query)
	for _, c := range classTable {
		if !c.match(q) {
			continue
		}
		ceiling := c.ceiling
		if ceiling == 0 {
			ceiling = defaultCeiling
		}
		if ceiling > hardMax {
			ceiling = hardMax
		}
		return plan{class: c.name, ceiling: ceiling, minKeep: c.minKeep}
	}
	// Unreachable: the last table row always matches.
	return plan{class: "question", ceiling: defaultCeiling, minKeep: 3}
}
