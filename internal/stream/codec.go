package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

// Terminator is the transport-level end-of-stream sentinel. It closes the
// SSE connection but is not itself an Event.
const Terminator = "data: [DONE]\n\n"

// envelope is the wire shape of an encoded event.
type envelope struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Encode frames an event as a single SSE data line:
//
//	data: <json>\n\n
//
// Decode is its inverse: Decode(Encode(e)) == e for every well-formed event.
func Encode(e Event) ([]byte, error) {
	// The payload pointers are checked per arm; assigning a nil *StartData to
	// an interface would make it non-nil and slip past a single guard.
	var data any
	switch e.Type {
	case EventStart:
		if e.Start == nil {
			return nil, fmt.Errorf("event %q has no payload", e.Type)
		}
		data = e.Start
	case EventDelta:
		if e.Delta == nil {
			return nil, fmt.Errorf("event %q has no payload", e.Type)
		}
		data = e.Delta
	case EventDone:
		if e.Done == nil {
			return nil, fmt.Errorf("event %q has no payload", e.Type)
		}
		data = e.Done
	case EventError:
		if e.Error == nil {
			return nil, fmt.Errorf("event %q has no payload", e.Type)
		}
		data = e.Error
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	body, err := json.Marshal(envelope{Type: e.Type, Timestamp: e.Timestamp, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(body)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Decode reconstructs an event from one SSE frame produced by Encode.
func Decode(frame []byte) (Event, error) {
	payload := bytes.TrimSpace(frame)
	payload = bytes.TrimPrefix(payload, []byte("data: "))

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	e := Event{Type: env.Type, Timestamp: env.Timestamp}
	var err error
	switch env.Type {
	case EventStart:
		e.Start = &StartData{}
		err = json.Unmarshal(env.Data, e.Start)
	case EventDelta:
		e.Delta = &DeltaData{}
		err = json.Unmarshal(env.Data, e.Delta)
	case EventDone:
		e.Done = &DoneData{}
		err = json.Unmarshal(env.Data, e.Done)
	case EventError:
		e.Error = &ErrorData{}
		err = json.Unmarshal(env.Data, e.Error)
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return e, nil
}

// Writer frames events onto an http.ResponseWriter as server-sent events,
// flushing after every frame.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for SSE output and returns a Writer. It fails when
// the underlying ResponseWriter does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, domain.ErrStreamingFailed("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Writer{w: w, flusher: flusher}, nil
}

// Send encodes and writes one event.
func (sw *Writer) Send(e Event) error {
	frame, err := Encode(e)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Terminate writes the end-of-stream sentinel.
func (sw *Writer) Terminate() {
	fmt.Fprint(sw.w, Terminator)
	sw.flusher.Flush()
}
