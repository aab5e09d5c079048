package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
)

func TestSynthesizedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/agents/triage/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":"ticket filed","usage":{"input_tokens":11,"output_tokens":2}}`))
	}))
	t.Cleanup(srv.Close)

	p := New("test-key", srv.URL)
	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "assistant/triage",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "file a ticket about the outage"}},
	})
	require.NoError(t, err)

	var got []stream.Event
	for ev := range events {
		got = append(got, ev)
	}

	// exactly start, one delta, done
	require.Len(t, got, 3)
	require.Equal(t, stream.EventStart, got[0].Type)
	require.Equal(t, stream.EventDelta, got[1].Type)
	require.Equal(t, "ticket filed", got[1].Delta.Content)
	require.Equal(t, stream.EventDone, got[2].Type)
	require.Equal(t, 13, got[2].Done.Usage.TotalTokens)
}

func TestAgentIDResolution(t *testing.T) {
	p := New("test-key", "https://assistant.internal")

	_, err := p.Complete(context.Background(), &domain.Request{Model: "gpt-4o"})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindModelNotFound, ge.Kind)

	_, err = p.Complete(context.Background(), &domain.Request{Model: "assistant/"})
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindModelNotFound, ge.Kind)
}

func TestUpstreamFailureBecomesErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("agent crashed"))
	}))
	t.Cleanup(srv.Close)

	p := New("test-key", srv.URL)
	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "assistant/general",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var got []stream.Event
	for ev := range events {
		got = append(got, ev)
	}
	last := got[len(got)-1]
	require.Equal(t, stream.EventError, last.Type)
	require.Equal(t, domain.ErrorKindProvider, last.Error.Kind)
}
