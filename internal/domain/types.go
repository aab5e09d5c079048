// Package domain holds the canonical chat types shared by every adapter,
// the orchestration loop, and the HTTP layer. Provider wire formats never
// leak past their adapter; everything upstream of an adapter speaks these
// types.
package domain

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a multi-part message body.
// Exactly one of Text or the image fields is populated.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	// Image data: either a URL (possibly a data: URL) or raw base64 with a
	// media type, depending on how the UI supplied it.
	ImageURL  string `json:"image_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// AttachmentKind distinguishes image attachments from generic files.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a file or image the user attached to a message.
type Attachment struct {
	Kind      AttachmentKind `json:"kind"`
	Name      string         `json:"name,omitempty"`
	MediaType string         `json:"media_type,omitempty"`
	URL       string         `json:"url,omitempty"`
	Data      string         `json:"data,omitempty"` // base64
}

// FunctionCall carries the name and raw JSON arguments of a tool invocation.
// Arguments stay an untyped JSON string until the executor parses them.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a structured function-invocation request emitted by a model.
// The ID is opaque and provider-assigned.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// Message represents a chat message.
//
// Invariant: a tool message always carries ToolCallID referencing a prior
// assistant ToolCalls entry in the same conversation. An assistant message
// with ToolCalls may have empty Content.
type Message struct {
	Role        Role          `json:"role"`
	Content     string        `json:"content,omitempty"`
	Parts       []ContentPart `json:"parts,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID  string        `json:"tool_call_id,omitempty"`
}

// Text flattens the message body to its text portion. Multi-part messages
// contribute only their text parts; a message with no text yields "".
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return m.Content
	}
	return sb.String()
}

// HasImageContent reports whether the message carries any image part or
// image attachment.
func (m *Message) HasImageContent() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	for _, a := range m.Attachments {
		if a.Kind == AttachmentImage {
			return true
		}
	}
	return false
}

// HasFileContent reports whether the message carries any non-image file
// attachment.
func (m *Message) HasFileContent() bool {
	for _, a := range m.Attachments {
		if a.Kind == AttachmentFile {
			return true
		}
	}
	return false
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes the function signature.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"` // JSON Schema
}

// ToolChoice is the tool-choice policy forwarded to providers.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// Request is a canonical chat completion request. It is immutable per call:
// the orchestration loop builds a new request for each round by appending
// messages, never mutating in place.
type Request struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []Message        `json:"messages"`
	Model          string           `json:"model"`
	Provider       string           `json:"provider,omitempty"`
	System         string           `json:"system,omitempty"`
	Temperature    *float32         `json:"temperature,omitempty"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ToolChoice     ToolChoice       `json:"tool_choice,omitempty"`
	AutoRoute      bool             `json:"auto_route,omitempty"`

	// UserAgent is the User-Agent of the originating request, forwarded to
	// upstream APIs for traceability.
	UserAgent string `json:"-"`
}

// WithMessages returns a copy of the request carrying the given message
// history. The original request is untouched.
func (r *Request) WithMessages(messages []Message) *Request {
	out := *r
	out.Messages = append([]Message(nil), messages...)
	return &out
}

// HasVisionContent reports whether any message in the request carries image
// content.
func (r *Request) HasVisionContent() bool {
	for i := range r.Messages {
		if r.Messages[i].HasImageContent() {
			return true
		}
	}
	return false
}

// LastUserText returns the text of the most recent user-authored message,
// or "" when there is none.
func (r *Request) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Text()
		}
	}
	return ""
}

// FinishReason is the canonical small enum all provider stop reasons map to.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// Usage represents accumulated token usage for a completed response.
// TotalTokens always equals InputTokens + OutputTokens. EstimatedCost is
// derived, not authoritative; nil when pricing is unknown for the model.
type Usage struct {
	InputTokens   int      `json:"input_tokens"`
	OutputTokens  int      `json:"output_tokens"`
	TotalTokens   int      `json:"total_tokens"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// Citation is a retrieval source a knowledge provider attached to a
// response.
type Citation struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	ElapsedMs    int64        `json:"elapsed_ms"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Response is a complete (non-streaming, or stream-collapsed) chat
// completion response. Content is nil when the model produced only tool
// calls.
type Response struct {
	Content   *string          `json:"content"`
	ToolCalls []ToolCall       `json:"tool_calls,omitempty"`
	Citations []Citation       `json:"citations,omitempty"`
	Usage     Usage            `json:"usage"`
	Metadata  ResponseMetadata `json:"metadata"`
}

// ToolResult is the outcome of executing a single tool.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolExecutionRecord is produced exactly once per tool-call id per round.
type ToolExecutionRecord struct {
	ID         string     `json:"id"` // == ToolCall.ID
	ToolName   string     `json:"tool_name"`
	Result     ToolResult `json:"result"`
	DurationMs int64      `json:"duration_ms"`
}
