package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttrawick-ondo/ondo-ai-sub000/internal/domain"
)

func TestUsageAdditivity(t *testing.T) {
	var a Accumulator
	a.RecordInput(100)
	a.RecordOutput(40)

	u := a.Usage("gpt-4o")
	require.Equal(t, 100, u.InputTokens)
	require.Equal(t, 40, u.OutputTokens)
	require.Equal(t, u.InputTokens+u.OutputTokens, u.TotalTokens)
}

func TestLastReportWins(t *testing.T) {
	var a Accumulator
	a.Record(10, 2)
	a.Record(50, 20)
	// zeros never overwrite a real report
	a.Record(0, 0)

	u := a.Usage("gpt-4o-mini")
	require.Equal(t, 50, u.InputTokens)
	require.Equal(t, 20, u.OutputTokens)
}

func TestEstimatedCost(t *testing.T) {
	var a Accumulator
	a.Record(1_000_000, 1_000_000)

	u := a.Usage("gpt-4o")
	require.NotNil(t, u.EstimatedCost)
	require.InDelta(t, 12.50, *u.EstimatedCost, 0.001)

	u = a.Usage("some-unknown-model")
	require.Nil(t, u.EstimatedCost)
}

func TestAbsentUsageLeavesZeros(t *testing.T) {
	var a Accumulator
	u := a.Usage("claude-sonnet-4-20250514")
	require.Zero(t, u.InputTokens)
	require.Zero(t, u.OutputTokens)
	require.Zero(t, u.TotalTokens)
}

func TestEstimateInput(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "You are a helpful assistant."},
		{Role: domain.RoleUser, Content: "Summarize the quarterly report in three bullet points."},
	}

	openaiCount := EstimateInput("gpt-4o", messages)
	require.Positive(t, openaiCount)
	// tiktoken counts far fewer tokens than characters
	require.Less(t, openaiCount, 60)

	fallbackCount := EstimateInput("glean-assistant", messages)
	require.Positive(t, fallbackCount)
}

func TestEstimateInputFlattensParts(t *testing.T) {
	messages := []domain.Message{{
		Role: domain.RoleUser,
		Parts: []domain.ContentPart{
			{Type: domain.PartText, Text: "describe this"},
			{Type: domain.PartImage, ImageURL: "https://example.com/big.png"},
		},
	}}
	// image parts contribute nothing to the text estimate
	withImage := EstimateInput("gpt-4o", messages)
	textOnly := EstimateInput("gpt-4o", []domain.Message{
		{Role: domain.RoleUser, Content: "describe this"},
	})
	require.Equal(t, textOnly, withImage)
}
