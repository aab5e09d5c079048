// Package stream defines the canonical event vocabulary every provider
// adapter normalizes into, plus its SSE wire framing. Adapters produce these
// events; the orchestration loop and the HTTP layer consume them without
// ever seeing provider transport differences.
package stream

import (
	"time"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// EventType tags the canonical event union.
type EventType string

const (
	EventStart EventType = "start"
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// StartData opens a logical stream. It is emitted before any upstream I/O
// completes and carries a generated correlation id.
type StartData struct {
	ID       string `json:"id"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// ToolCallDelta is a partial tool-call fragment keyed by a stable per-stream
// index. ID and Name arrive on the first fragment for an index; Arguments
// accumulate across fragments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// DeltaData carries exactly one of: a text delta, a thinking delta, or a
// tool-call fragment.
type DeltaData struct {
	Content  string         `json:"content,omitempty"`
	Thinking string         `json:"thinking,omitempty"`
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`
}

// DoneData closes a stream successfully. Content is nil when the model
// produced only tool calls.
type DoneData struct {
	Content   *string                 `json:"content"`
	ToolCalls []domain.ToolCall       `json:"tool_calls,omitempty"`
	Citations []domain.Citation       `json:"citations,omitempty"`
	Usage     domain.Usage            `json:"usage"`
	Metadata  domain.ResponseMetadata `json:"metadata"`
}

// ErrorData closes a stream with a failure. Message is human-readable; Kind
// is the canonical taxonomy entry.
type ErrorData struct {
	Message string           `json:"message"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

// Event is the canonical stream event. Exactly one of the payload fields is
// non-nil, matching Type.
//
// Lifecycle per stream: exactly one start, zero or more deltas, exactly one
// terminal done or error. Nothing follows a terminal event.
type Event struct {
	Type      EventType
	Timestamp int64 // unix milliseconds

	Start *StartData
	Delta *DeltaData
	Done  *DoneData
	Error *ErrorData
}

func now() int64 { return time.Now().UnixMilli() }

// NewStart constructs a start event.
func NewStart(id, model, provider string) Event {
	return Event{
		Type:      EventStart,
		Timestamp: now(),
		Start:     &StartData{ID: id, Model: model, Provider: provider},
	}
}

// NewContentDelta constructs a text delta event.
func NewContentDelta(text string) Event {
	return Event{Type: EventDelta, Timestamp: now(), Delta: &DeltaData{Content: text}}
}

// NewThinkingDelta constructs a reasoning delta event.
func NewThinkingDelta(text string) Event {
	return Event{Type: EventDelta, Timestamp: now(), Delta: &DeltaData{Thinking: text}}
}

// NewToolCallDelta constructs a tool-call fragment event.
func NewToolCallDelta(d ToolCallDelta) Event {
	return Event{Type: EventDelta, Timestamp: now(), Delta: &DeltaData{ToolCall: &d}}
}

// NewDone constructs the terminal success event.
func NewDone(d DoneData) Event {
	return Event{Type: EventDone, Timestamp: now(), Done: &d}
}

// NewError constructs the terminal failure event from any error.
func NewError(err error) Event {
	ge := domain.ClassifyError(err)
	return Event{
		Type:      EventError,
		Timestamp: now(),
		Error:     &ErrorData{Message: ge.Message, Kind: ge.Kind},
	}
}

// Terminal reports whether the event closes its stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
