package glean

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

func TestStreamFragmentsAndCitations(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/x-ndjson")
		body := `{"messages":[{"author":"GLEAN_AI","messageType":"CONTENT","fragments":[{"text":"The PTO policy "}]}]}` + "\n" +
			`not json, tolerated` + "\n" +
			`{"messages":[{"author":"GLEAN_AI","messageType":"CONTENT","fragments":[{"text":"allows 25 days."}],"citations":[{"sourceDocument":{"title":"PTO Policy","url":"https://wiki.internal/pto"},"snippet":"25 days annually"}]}],"chatSessionTrackingToken":"tok-1"}` + "\n"
		_, _ = w.Write([]byte(body))
	})

	events, err := p.Stream(context.Background(), &domain.Request{
		ConversationID: "conv-1",
		Model:          "glean-assistant",
		Messages:       []domain.Message{{Role: domain.RoleUser, Content: "what is our pto policy"}},
	})
	require.NoError(t, err)
	got := collect(t, events)

	require.Equal(t, stream.EventStart, got[0].Type)
	last := got[len(got)-1]
	require.Equal(t, stream.EventDone, last.Type)
	require.NotNil(t, last.Done.Content)
	require.Equal(t, "The PTO policy allows 25 days.", *last.Done.Content)
	require.Len(t, last.Done.Citations, 1)
	require.Equal(t, "PTO Policy", last.Done.Citations[0].Title)
	require.Equal(t, "https://wiki.internal/pto", last.Done.Citations[0].URL)
	require.Positive(t, last.Done.Usage.TotalTokens)
}

func TestSessionTokenContinuation(t *testing.T) {
	var requests []chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"messages":[{"author":"GLEAN_AI","fragments":[{"text":"ok"}]}],"chatSessionTrackingToken":"tok-42"}` + "\n"))
	})

	first := &domain.Request{
		ConversationID: "conv-7",
		Model:          "glean-assistant",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "who owns the billing service"},
		},
	}
	collect(t, mustStream(t, p, first))

	second := &domain.Request{
		ConversationID: "conv-7",
		Model:          "glean-assistant",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "who owns the billing service"},
			{Role: domain.RoleAssistant, Content: "ok"},
			{Role: domain.RoleUser, Content: "and the payments service?"},
		},
	}
	collect(t, mustStream(t, p, second))

	require.Len(t, requests, 2)
	require.Empty(t, requests[0].SessionToken)
	require.Equal(t, "tok-42", requests[1].SessionToken)
	// with a token only the latest user turn travels
	require.Len(t, requests[1].Messages, 1)
	require.Equal(t, "and the payments service?", requests[1].Messages[0].Fragments[0].Text)
}

func TestSeparateConversationsDoNotShareTokens(t *testing.T) {
	var tokensSeen []string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		tokensSeen = append(tokensSeen, req.SessionToken)
		_, _ = w.Write([]byte(`{"messages":[{"author":"GLEAN_AI","fragments":[{"text":"ok"}]}],"chatSessionTrackingToken":"tok-a"}` + "\n"))
	})

	collect(t, mustStream(t, p, &domain.Request{
		ConversationID: "conv-a", Model: "glean-assistant",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}))
	collect(t, mustStream(t, p, &domain.Request{
		ConversationID: "conv-b", Model: "glean-assistant",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}))

	require.Equal(t, []string{"", ""}, tokensSeen)
}

func TestNotConfiguredWithoutBaseURL(t *testing.T) {
	p := New("test-key", "")
	require.False(t, p.IsConfigured())

	_, err := p.Complete(context.Background(), &domain.Request{Model: "glean-assistant"})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindNotConfigured, ge.Kind)
}

func mustStream(t *testing.T, p *Provider, req *domain.Request) <-chan stream.Event {
	t.Helper()
	events, err := p.Stream(context.Background(), req)
	require.NoError(t, err)
	return events
}
