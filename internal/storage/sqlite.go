package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	intent          TEXT NOT NULL DEFAULT '',
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	error_kind      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at);
`

// SQLiteLog persists interactions to a local sqlite database.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (and migrates) the database at path.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

func (s *SQLiteLog) Record(ctx context.Context, in *Interaction) error {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(id, conversation_id, provider, model, intent, input_tokens, output_tokens, duration_ms, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.ConversationID, in.Provider, in.Model, in.Intent,
		in.InputTokens, in.OutputTokens, in.DurationMs, in.ErrorKind, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteLog) Recent(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, provider, model, intent, input_tokens, output_tokens, duration_ms, error_kind, created_at
		FROM interactions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.ConversationID, &in.Provider, &in.Model, &in.Intent,
			&in.InputTokens, &in.OutputTokens, &in.DurationMs, &in.ErrorKind, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLiteLog) Close() error { return s.db.Close() }
