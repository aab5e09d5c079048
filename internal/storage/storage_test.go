package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogs(t *testing.T) map[string]InteractionLog {
	t.Helper()
	sqliteLog, err := NewSQLiteLog(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteLog.Close() })
	return map[string]InteractionLog{
		"memory": NewMemoryLog(),
		"sqlite": sqliteLog,
	}
}

func TestRecordAndRecent(t *testing.T) {
	for name, log := range testLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, log.Record(ctx, &Interaction{
					ConversationID: fmt.Sprintf("conv-%d", i),
					Provider:       "openai",
					Model:          "gpt-4o-mini",
					Intent:         "general_chat",
					InputTokens:    10 + i,
					OutputTokens:   5,
					DurationMs:     120,
				}))
			}

			recent, err := log.Recent(ctx, 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			// newest first
			require.Equal(t, "conv-4", recent[0].ConversationID)
			require.NotEmpty(t, recent[0].ID)
			require.False(t, recent[0].CreatedAt.IsZero())
		})
	}
}

func TestRecordErrorTurn(t *testing.T) {
	for name, log := range testLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, log.Record(ctx, &Interaction{
				ConversationID: "conv-err",
				Provider:       "anthropic",
				Model:          "claude-3-5-haiku-20241022",
				ErrorKind:      "rate_limited",
			}))

			recent, err := log.Recent(ctx, 1)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			require.Equal(t, "rate_limited", recent[0].ErrorKind)
		})
	}
}
