// Package glean adapts canonical chat requests to the Glean Assistant chat
// API. Glean streams NDJSON rather than SSE and threads conversation state
// through an opaque session tracking token.
package glean

import "github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"

type chatRequest struct {
	Messages     []wireMessage `json:"messages"`
	Stream       bool          `json:"stream,omitempty"`
	SessionToken string        `json:"chatSessionTrackingToken,omitempty"`
}

type wireMessage struct {
	Author      string     `json:"author"` // "USER" or "GLEAN_AI"
	MessageType string     `json:"messageType,omitempty"`
	Fragments   []fragment `json:"fragments,omitempty"`
}

type fragment struct {
	Text string `json:"text,omitempty"`
}

// chatLine is one NDJSON frame (or the whole body in unary mode). Unknown
// fields are ignored; frames that decode but carry nothing useful are
// skipped.
type chatLine struct {
	Messages     []responseMessage `json:"messages,omitempty"`
	SessionToken string            `json:"chatSessionTrackingToken,omitempty"`
}

type responseMessage struct {
	Author      string         `json:"author,omitempty"`
	MessageType string         `json:"messageType,omitempty"`
	Fragments   []fragment     `json:"fragments,omitempty"`
	Citations   []wireCitation `json:"citations,omitempty"`
}

type wireCitation struct {
	SourceDocument *sourceDocument `json:"sourceDocument,omitempty"`
	Snippet        string          `json:"snippet,omitempty"`
}

type sourceDocument struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (c *wireCitation) toCanonical() domain.Citation {
	out := domain.Citation{Snippet: c.Snippet}
	if c.SourceDocument != nil {
		out.Title = c.SourceDocument.Title
		out.URL = c.SourceDocument.URL
	}
	return out
}
