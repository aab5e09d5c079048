package cmdbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/stream"
)

func TestCompleteEchoesStdout(t *testing.T) {
	p := New("sh", []string{"-c", "cat >/dev/null; echo pong"}, 0)

	resp, err := p.Complete(context.Background(), &domain.Request{
		Model:    "cmdbot",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	require.Equal(t, "pong", *resp.Content)
	require.Equal(t, providerName, resp.Metadata.Provider)
	require.Positive(t, resp.Usage.TotalTokens)
}

func TestConversationFlattening(t *testing.T) {
	p := New("cat", nil, 0)

	resp, err := p.Complete(context.Background(), &domain.Request{
		Model:  "cmdbot",
		System: "be helpful",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hello"},
			{Role: domain.RoleAssistant, Content: "hi"},
			{Role: domain.RoleTool, ToolCallID: "x", Content: "dropped"},
			{Role: domain.RoleUser, Content: "bye"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "system: be helpful\nuser: hello\nassistant: hi\nuser: bye", *resp.Content)
}

func TestHardTimeoutKillsProcess(t *testing.T) {
	p := New("sleep", []string{"10"}, 100*time.Millisecond)

	start := time.Now()
	_, err := p.Complete(context.Background(), &domain.Request{
		Model:    "cmdbot",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hang"}},
	})
	require.Less(t, time.Since(start), 5*time.Second)

	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindStreamingFailed, ge.Kind)
	require.Contains(t, ge.Detail, "timed out")
}

func TestProcessFailureIncludesStderr(t *testing.T) {
	p := New("sh", []string{"-c", "echo boom >&2; exit 3"}, 0)

	_, err := p.Complete(context.Background(), &domain.Request{
		Model:    "cmdbot",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindProvider, ge.Kind)
	require.Contains(t, ge.Detail, "boom")
}

func TestStreamLifecycle(t *testing.T) {
	p := New("sh", []string{"-c", "cat >/dev/null; echo ok"}, 0)

	events, err := p.Stream(context.Background(), &domain.Request{
		Model:    "cmdbot",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)

	var got []stream.Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	require.Equal(t, stream.EventStart, got[0].Type)
	require.Equal(t, stream.EventDelta, got[1].Type)
	require.Equal(t, stream.EventDone, got[2].Type)
}

func TestNotConfigured(t *testing.T) {
	p := New("", nil, 0)
	require.False(t, p.IsConfigured())

	_, err := p.Complete(context.Background(), &domain.Request{Model: "cmdbot"})
	var ge *domain.GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.ErrorKindNotConfigured, ge.Kind)
}
