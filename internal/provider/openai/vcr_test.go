package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/testutil"
)

// Replays a recorded completion against the real API shape. Skipped until a
// cassette is recorded with VCR_MODE=record and a live key.
func TestCompleteAgainstRecordedAPI(t *testing.T) {
	rec, cleanup := testutil.NewVCRRecorder(t, "openai_complete")
	defer cleanup()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = "recorded-key"
	}
	p := New(apiKey, "", WithHTTPClient(testutil.VCRHTTPClient(rec)))

	resp, err := p.Complete(context.Background(), &domain.Request{
		Model:    "gpt-4o-mini",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Say the word ready."}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	require.NotEmpty(t, *resp.Content)
	require.Positive(t, resp.Usage.TotalTokens)
}
