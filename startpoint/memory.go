// Package startpoint provides offset.StartpointManager implementations
// for the durable fan-out store of operator-issued startpoint overrides.
package startpoint

import (
	"context"
	"sync"

	"github.com/erikmalm/streamworks/offset"
)

var _ offset.StartpointManager = (*MemoryManager)(nil)

// MemoryManager is an in-memory offset.StartpointManager for tests and
// local development. Fan-out does not survive a process restart.
type MemoryManager struct {
	mu     sync.Mutex
	fanOut map[offset.TaskName]map[offset.SSP]offset.Startpoint
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		fanOut: make(map[offset.TaskName]map[offset.SSP]offset.Startpoint),
	}
}

func (m *MemoryManager) Start(_ context.Context) error { return nil }
func (m *MemoryManager) Stop(_ context.Context) error  { return nil }

func (m *MemoryManager) GetFanOutForTask(_ context.Context, taskName offset.TaskName) (map[offset.SSP]offset.Startpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.fanOut[taskName]
	if !ok {
		return nil, nil
	}
	out := make(map[offset.SSP]offset.Startpoint, len(entries))
	for ssp, sp := range entries {
		out[ssp] = sp
	}
	return out, nil
}

func (m *MemoryManager) RemoveFanOutForTask(_ context.Context, taskName offset.TaskName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fanOut, taskName)
	return nil
}

// Seed installs fan-out entries for a task, as the outer job-bootstrap
// would when an operator issues a startpoint override.
func (m *MemoryManager) Seed(taskName offset.TaskName, entries map[offset.SSP]offset.Startpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fanOut[taskName] = entries
}

// Pending reports whether any task still has fan-out entries loaded.
func (m *MemoryManager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fanOut) > 0
}
