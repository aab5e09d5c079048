package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
)

func sseEvent(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL)
}

func collect(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamSplitUsage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "text/event-stream")
		body := sseEvent("message_start", `{"message":{"id":"m1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":20,"output_tokens":0}}}`) +
			sseEvent("content_block_start", `{"index":0,"content_block":{"type":"text","text":""}}`) +
			sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"Hi "}}`) +
			sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"there"}}`) +
			sseEvent("content_block_stop", `{"index":0}`) +
			sseEvent("message_delta", `{"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`) +
			sseEvent("message_stop", `{}`)
		_, _ = w.Write([]byte(body))
	})

	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	got := collect(t, events)

	require.Equal(t, stream.EventStart, got[0].Type)
	last := got[len(got)-1]
	require.Equal(t, stream.EventDone, last.Type)
	require.NotNil(t, last.Done.Content)
	require.Equal(t, "Hi there", *last.Done.Content)
	require.Equal(t, 20, last.Done.Usage.InputTokens)
	require.Equal(t, 7, last.Done.Usage.OutputTokens)
	require.Equal(t, 27, last.Done.Usage.TotalTokens)
	require.Equal(t, domain.FinishStop, last.Done.Metadata.FinishReason)
}

func TestStreamToolUse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		body := sseEvent("message_start", `{"message":{"id":"m2","model":"claude-sonnet-4-20250514","usage":{"input_tokens":30,"output_tokens":0}}}`) +
			sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"web_fetch"}}`) +
			sseEvent("content_block_delta", `{"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"url\":"}}`) +
			sseEvent("content_block_delta", `{"index":0,"delta":{"type":"input_json_delta","partial_json":"\"https://example.com\"}"}}`) +
			sseEvent("content_block_stop", `{"index":0}`) +
			sseEvent("message_delta", `{"delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":15}}`) +
			sseEvent("message_stop", `{}`)
		_, _ = w.Write([]byte(body))
	})

	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "fetch example.com"}},
	})
	require.NoError(t, err)
	got := collect(t, events)

	last := got[len(got)-1]
	require.Equal(t, stream.EventDone, last.Type)
	require.Equal(t, domain.FinishToolCalls, last.Done.Metadata.FinishReason)
	require.Len(t, last.Done.ToolCalls, 1)
	tc := last.Done.ToolCalls[0]
	require.Equal(t, "toolu_1", tc.ID)
	require.Equal(t, "web_fetch", tc.Function.Name)
	require.JSONEq(t, `{"url":"https://example.com"}`, tc.Function.Arguments)

	// first tool delta carries id and name, later ones only arguments
	var toolDeltas []stream.ToolCallDelta
	for _, ev := range got {
		if ev.Type == stream.EventDelta && ev.Delta.ToolCall != nil {
			toolDeltas = append(toolDeltas, *ev.Delta.ToolCall)
		}
	}
	require.GreaterOrEqual(t, len(toolDeltas), 3)
	require.Equal(t, "toolu_1", toolDeltas[0].ID)
	require.Equal(t, "web_fetch", toolDeltas[0].Name)
	require.Empty(t, toolDeltas[1].ID)
}

func TestStreamThinkingDelta(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		body := sseEvent("message_start", `{"message":{"id":"m3","model":"claude-sonnet-4-20250514","usage":{"input_tokens":5,"output_tokens":0}}}`) +
			sseEvent("content_block_start", `{"index":0,"content_block":{"type":"thinking"}}`) +
			sseEvent("content_block_delta", `{"index":0,"delta":{"type":"thinking_delta","thinking":"considering"}}`) +
			sseEvent("content_block_stop", `{"index":0}`) +
			sseEvent("content_block_start", `{"index":1,"content_block":{"type":"text","text":""}}`) +
			sseEvent("content_block_delta", `{"index":1,"delta":{"type":"text_delta","text":"answer"}}`) +
			sseEvent("message_delta", `{"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`) +
			sseEvent("message_stop", `{}`)
		_, _ = w.Write([]byte(body))
	})

	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "think"}},
	})
	require.NoError(t, err)
	got := collect(t, events)

	var thinking, text string
	for _, ev := range got {
		if ev.Type == stream.EventDelta && ev.Delta != nil {
			thinking += ev.Delta.Thinking
			text += ev.Delta.Content
		}
	}
	require.Equal(t, "considering", thinking)
	require.Equal(t, "answer", text)
	require.NotNil(t, got[len(got)-1].Done.Content)
	require.Equal(t, "answer", *got[len(got)-1].Done.Content)
}

func TestCompleteToolResultTranslation(t *testing.T) {
	var captured messagesRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"m4","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"done"}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":40,"output_tokens":2}
		}`))
	})

	resp, err := p.Complete(context.Background(), &domain.Request{
		Model:  "claude-sonnet-4-20250514",
		System: "be terse",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "what time is it"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
				ID: "toolu_9", Type: "function",
				Function: domain.FunctionCall{Name: "current_time", Arguments: `{"tz":"UTC"}`},
			}}},
			{Role: domain.RoleTool, ToolCallID: "toolu_9", Content: "2026-01-01T00:00:00Z"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	require.Equal(t, "done", *resp.Content)

	require.Equal(t, "be terse", captured.System)
	require.Len(t, captured.Messages, 3)
	require.Equal(t, "assistant", captured.Messages[1].Role)
	require.Equal(t, "tool_use", captured.Messages[1].Content[0].Type)
	require.Equal(t, "user", captured.Messages[2].Role)
	require.Equal(t, "tool_result", captured.Messages[2].Content[0].Type)
	require.Equal(t, "toolu_9", captured.Messages[2].Content[0].ToolUseID)
}

func TestRateLimitMapping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"Too many requests"}}`))
	})

	_, err := p.Complete(context.Background(), &domain.Request{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindRateLimited, ge.Kind)
}

func TestModelNotFound(t *testing.T) {
	p := New("test-key", "")
	_, err := p.Complete(context.Background(), &domain.Request{Model: "gpt-4o"})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindModelNotFound, ge.Kind)
}
