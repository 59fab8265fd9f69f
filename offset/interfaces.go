package offset

import "context"

// Admin is the per-system broker adapter (SystemAdmin in the spec
// vocabulary). One implementation is registered per system name; the
// Manager never knows about a concrete broker, only this capability
// interface.
type Admin interface {
	// GetOffsetsAfter returns the next offset to read for each entry in
	// offsets. The admin may return fewer or more entries than given;
	// only returned entries are adopted by the resolver.
	GetOffsetsAfter(ctx context.Context, offsets map[SSP]string) (map[SSP]string, error)

	// ResolveStartpointToOffset resolves an operator-issued override to a
	// concrete offset. A blank result is treated as "could not resolve"
	// and falls through to the default-fill stage.
	ResolveStartpointToOffset(ctx context.Context, ssp SSP, startpoint Startpoint) (string, error)

	// OffsetComparator orders two offsets from this system. comparable
	// is false when the two values cannot be ordered (the spec's
	// "incomparable" sentinel); callers must treat that as "not less
	// than" rather than erroring.
	OffsetComparator(a, b string) (cmp int, comparable bool)
}

// CheckpointManager is the durable checkpoint store, owned by the
// container but driven through this interface.
type CheckpointManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Register(taskName TaskName) error
	ReadLastCheckpoint(ctx context.Context, taskName TaskName) (Checkpoint, bool, error)
	ReadAllCheckpoints(ctx context.Context) (map[TaskName]Checkpoint, error)
	WriteCheckpoint(ctx context.Context, taskName TaskName, checkpoint Checkpoint) error
}

// StartpointManager is the durable fan-out store for operator-issued
// startpoints, shared between the core and the outer job bootstrap that
// produces fan-out entries.
type StartpointManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GetFanOutForTask(ctx context.Context, taskName TaskName) (map[SSP]Startpoint, error)
	RemoveFanOutForTask(ctx context.Context, taskName TaskName) error
}

// CheckpointListener is a per-system, optional hook invoked pre- and
// post-commit. Listeners receive only SSPs the core manages (registered
// SSPs), never changelog or other pass-through entries.
type CheckpointListener interface {
	BeforeCheckpoint(ctx context.Context, offsets map[SSP]string) (map[SSP]string, error)
	OnCheckpoint(ctx context.Context, offsets map[SSP]string) error
}
