// Package storage records completed chat turns for observability. The log is
// an audit trail of what the gateway did, not conversation persistence: no
// message content is stored.
package storage

import (
	"context"
	"time"
)

// Interaction is one completed (or failed) chat turn.
type Interaction struct {
	ID             string
	ConversationID string
	Provider       string
	Model          string
	Intent         string
	InputTokens    int
	OutputTokens   int
	DurationMs     int64
	ErrorKind      string
	CreatedAt      time.Time
}

// InteractionLog records turns. Record is called fire-and-forget after each
// turn; implementations must be safe for concurrent use.
type InteractionLog interface {
	Record(ctx context.Context, in *Interaction) error

	// Recent returns up to limit interactions, newest first.
	Recent(ctx context.Context, limit int) ([]Interaction, error)

	Close() error
}
