// Package store provides SnapshotStore implementations for the Session
// Engine's reload-continuity record.
package store

import (
	"context"
	"sync"

	iam "github.com/chimerakang/portfolio-iam"
)

// Memory keeps the snapshot in process memory.
type Memory struct {
	mu   sync.RWMutex
	snap *iam.ActivitySnapshot
}

var _ iam.SnapshotStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (*iam.ActivitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, nil
	}
	s := *m.snap
	return &s, nil
}

func (m *Memory) Save(_ context.Context, snap iam.ActivitySnapshot) error {
	m.mu.Lock()
	m.snap = &snap
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context) error {
	m.mu.Lock()
	m.snap = nil
	m.mu.Unlock()
	return nil
}
