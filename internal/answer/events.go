package answer

import "mcpress/internal/bib"

// Event kinds. A stream is zero or more token events followed by exactly
// one done or one error event; a cancelled stream may end with neither.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// Error kinds carried on error events.
const (
	KindRetrieveFailed = "RetrieveFailed"
	KindLLMUnavailable = "LLMUnavailable"
	KindLLMTimeout     = "LLMTimeout"
	KindStreamAborted  = "LLMStreamAborted"
)

// Event is one element of the answer stream. Fields are populated per the
// event type; consumers switch on Type.
type Event struct {
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// Source is the citation record attached to the done event. The JSON shape
// is a consumer contract: page is an integer or the string "N/A",
// mc_press_url is empty-string when absent, article_url is null when
// absent, and authors is always an array.
type Source struct {
	Filename     string          `json:"filename"`
	Page         any             `json:"page"`
	Type         string          `json:"type"`
	Distance     float64         `json:"distance"`
	Author       string          `json:"author"`
	MCPressURL   string          `json:"mc_press_url"`
	ArticleURL   *string         `json:"article_url"`
	DocumentType string          `json:"document_type"`
	Authors      []bib.AuthorRef `json:"authors"`
}

// stubSource is the degraded citation used when no book row matches a
// retrieved chunk's filename.
func stubSource(filename string, page any, chunkType string, distance float64) Source {
	return Source{
		Filename:     filename,
		Page:         page,
		Type:         chunkType,
		Distance:     distance,
		Author:       "Unknown",
		MCPressURL:   "",
		ArticleURL:   nil,
		DocumentType: "book",
		Authors:      []bib.AuthorRef{},
	}
}
