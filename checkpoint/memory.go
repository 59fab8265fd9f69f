// Package checkpoint provides offset.CheckpointManager implementations:
// an in-memory store for tests and single-process bootstraps, and a
// Postgres-backed durable store for production use.
package checkpoint

import (
	"context"
	"sync"

	"github.com/erikmalm/streamworks/offset"
)

var _ offset.CheckpointManager = (*MemoryManager)(nil)

// MemoryManager is an in-memory offset.CheckpointManager. Checkpoints do
// not survive process restart; intended for tests and local development.
type MemoryManager struct {
	mu          sync.RWMutex
	checkpoints map[offset.TaskName]offset.Checkpoint
	registered  map[offset.TaskName]struct{}
	started     bool
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		checkpoints: make(map[offset.TaskName]offset.Checkpoint),
		registered:  make(map[offset.TaskName]struct{}),
	}
}

func (m *MemoryManager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MemoryManager) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

func (m *MemoryManager) Register(taskName offset.TaskName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[taskName] = struct{}{}
	return nil
}

func (m *MemoryManager) ReadLastCheckpoint(_ context.Context, taskName offset.TaskName) (offset.Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[taskName]
	if !ok {
		return nil, false, nil
	}
	return cp.Copy(), true, nil
}

func (m *MemoryManager) ReadAllCheckpoints(_ context.Context) (map[offset.TaskName]offset.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[offset.TaskName]offset.Checkpoint, len(m.checkpoints))
	for taskName, cp := range m.checkpoints {
		out[taskName] = cp.Copy()
	}
	return out, nil
}

func (m *MemoryManager) WriteCheckpoint(_ context.Context, taskName offset.TaskName, cp offset.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[taskName] = cp.Copy()
	return nil
}

// Seed installs a checkpoint directly, bypassing WriteCheckpoint's normal
// callers. Used by tests to set up a warm-start scenario.
func (m *MemoryManager) Seed(taskName offset.TaskName, cp offset.Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[taskName] = cp.Copy()
}
