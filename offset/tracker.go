package offset

import "sync"

// taskOffsets is the inner, per-task map of RuntimeTracker. Its own lock
// lets concurrent updates on distinct tasks proceed without contending on
// a single outer lock.
type taskOffsets struct {
	mu      sync.RWMutex
	offsets map[SSP]string
}

// Tracker is a thread-safe store of last-processed offsets: outer
// task -> inner ssp -> offset. Concurrent Update calls on distinct tasks
// never block each other; within a task the inner map serializes them.
type Tracker struct {
	registry *Registry

	outerMu sync.RWMutex
	byTask  map[TaskName]*taskOffsets
}

func NewTracker(registry *Registry) *Tracker {
	return &Tracker{
		registry: registry,
		byTask:   make(map[TaskName]*taskOffsets),
	}
}

// seed installs a starting map for a task without going through Update's
// resolution/sentinel checks. Called once by Manager.Start while
// populating startingOffsets; not safe to call after start.
func (t *Tracker) seed(taskName TaskName, offsets map[SSP]string) {
	t.outerMu.Lock()
	defer t.outerMu.Unlock()
	inner := &taskOffsets{offsets: make(map[SSP]string, len(offsets))}
	for ssp, off := range offsets {
		inner.offsets[ssp] = off
	}
	t.byTask[taskName] = inner
}

func (t *Tracker) taskEntry(taskName TaskName) (*taskOffsets, bool) {
	t.outerMu.RLock()
	defer t.outerMu.RUnlock()
	inner, ok := t.byTask[taskName]
	return inner, ok
}

// taskEntryForUpdate returns the inner map for taskName, lazily creating
// it the first time a given task is updated. A task with no seeded
// starting offsets (e.g. a Tracker driven directly in tests, or a task
// registered after a lighter-weight bootstrap than Manager.Start) still
// accumulates updates correctly.
func (t *Tracker) taskEntryForUpdate(taskName TaskName) *taskOffsets {
	if inner, ok := t.taskEntry(taskName); ok {
		return inner
	}
	t.outerMu.Lock()
	defer t.outerMu.Unlock()
	if inner, ok := t.byTask[taskName]; ok {
		return inner
	}
	inner := &taskOffsets{offsets: make(map[SSP]string)}
	t.byTask[taskName] = inner
	return inner
}

// Update looks ssp up in the registry by exact match (stream, partition
// and key bucket all equal) and records offset. An SSP registered only
// under a different key bucket is not matched. A blank offset or the
// EndOfStream sentinel is a no-op. Returns UnknownPartitionError if ssp
// is not registered to taskName.
func (t *Tracker) Update(taskName TaskName, ssp SSP, offset string) error {
	if offset == "" || offset == EndOfStream {
		return nil
	}

	owner, ok := t.registry.TaskFor(ssp)
	if !ok || owner != taskName {
		return &UnknownPartitionError{SSP: ssp}
	}

	inner := t.taskEntryForUpdate(taskName)

	inner.mu.Lock()
	inner.offsets[ssp] = offset
	inner.mu.Unlock()

	t.registry.ObserveOffset(ssp, offset)
	return nil
}

// GetLastProcessedOffset is a lock-free-for-callers read of the last
// offset recorded for (taskName, ssp).
func (t *Tracker) GetLastProcessedOffset(taskName TaskName, ssp SSP) (string, bool) {
	inner, ok := t.taskEntry(taskName)
	if !ok {
		return "", false
	}
	inner.mu.RLock()
	defer inner.mu.RUnlock()
	off, ok := inner.offsets[ssp]
	return off, ok
}

// Snapshot returns a point-in-time copy of taskName's last-processed
// offsets, filtered to SSPs currently registered to that task.
func (t *Tracker) Snapshot(taskName TaskName) Checkpoint {
	inner, ok := t.taskEntry(taskName)
	if !ok {
		return Checkpoint{}
	}
	registered := make(map[SSP]struct{})
	for _, ssp := range t.registry.SSPsForTask(taskName) {
		registered[ssp] = struct{}{}
	}

	inner.mu.RLock()
	defer inner.mu.RUnlock()
	out := make(Checkpoint, len(inner.offsets))
	for ssp, off := range inner.offsets {
		if _, ok := registered[ssp]; ok {
			out[ssp] = off
		}
	}
	return out
}
