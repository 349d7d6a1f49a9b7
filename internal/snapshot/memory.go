package snapshot

import (
	"context"
	"sync"
)

// MemorySink keeps snapshots in process, newest first.
type MemorySink struct {
	keep int

	mu        sync.RWMutex
	snapshots []Snapshot
}

func NewMemorySink(keep int) *MemorySink {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &MemorySink{keep: keep}
}

func (m *MemorySink) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots = append([]Snapshot{s}, m.snapshots...)
	if len(m.snapshots) > m.keep {
		m.snapshots = m.snapshots[:m.keep]
	}
	return nil
}

func (m *MemorySink) Latest(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.snapshots) == 0 {
		return nil, ErrNoSnapshot
	}
	s := m.snapshots[0]
	return &s, nil
}

// Len reports how many snapshots are retained.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

func (m *MemorySink) Close() error { return nil }
