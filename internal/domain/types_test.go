package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageText(t *testing.T) {
	m := Message{Role: RoleUser, Content: "plain"}
	require.Equal(t, "plain", m.Text())

	m = Message{Role: RoleUser, Parts: []ContentPart{
		{Type: PartText, Text: "first"},
		{Type: PartImage, ImageURL: "https://example.com/x.png"},
		{Type: PartText, Text: "second"},
	}}
	require.Equal(t, "first\nsecond", m.Text())

	// parts with no text fall back to Content
	m = Message{Role: RoleUser, Content: "fallback", Parts: []ContentPart{
		{Type: PartImage, ImageURL: "https://example.com/x.png"},
	}}
	require.Equal(t, "fallback", m.Text())
}

func TestHasImageContent(t *testing.T) {
	require.False(t, (&Message{Content: "text"}).HasImageContent())
	require.True(t, (&Message{Parts: []ContentPart{{Type: PartImage}}}).HasImageContent())
	require.True(t, (&Message{Attachments: []Attachment{{Kind: AttachmentImage}}}).HasImageContent())
	require.False(t, (&Message{Attachments: []Attachment{{Kind: AttachmentFile}}}).HasImageContent())
	require.True(t, (&Message{Attachments: []Attachment{{Kind: AttachmentFile}}}).HasFileContent())
}

func TestWithMessagesCopies(t *testing.T) {
	original := &Request{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "one"}},
	}
	history := []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
	}

	extended := original.WithMessages(history)
	require.Len(t, original.Messages, 1, "original request is untouched")
	require.Len(t, extended.Messages, 2)
	require.Equal(t, original.Model, extended.Model)

	// mutating the source slice after the copy must not leak in
	history[0].Content = "mutated"
	require.Equal(t, "one", extended.Messages[0].Content)
}

func TestLastUserText(t *testing.T) {
	r := &Request{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "latest"},
		{Role: RoleAssistant, Content: "another"},
	}}
	require.Equal(t, "latest", r.LastUserText())

	empty := &Request{Messages: []Message{{Role: RoleAssistant, Content: "only"}}}
	require.Equal(t, "", empty.LastUserText())
}
