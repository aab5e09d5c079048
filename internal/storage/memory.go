package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryCap bounds how many interactions the in-memory log retains.
const memoryCap = 1000

// MemoryLog is the default, process-local interaction log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Interaction
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Record(_ context.Context, in *Interaction) error {
	entry := *in
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > memoryCap {
		m.entries = m.entries[len(m.entries)-memoryCap:]
	}
	return nil
}

func (m *MemoryLog) Recent(_ context.Context, limit int) ([]Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Interaction, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryLog) Close() error { return nil }
