package offset

import (
	"context"
	"fmt"
	"sync"

	"github.com/erikmalm/streamworks/logger"
	"go.opentelemetry.io/otel/metric"
)

// State is a position in the Manager lifecycle state machine. Transitions
// are monotonic; re-entry into an earlier state is a programmer error.
type State int32

const (
	StateUninit State = iota
	StateRegistering
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateRegistering:
		return "registering"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Manager is the per-container offset coordination core. It reconciles
// startpoints, checkpoints, and broker defaults into a starting position
// for every registered partition, tracks last-processed offsets while
// tasks run, and drives the commit pipeline. One Manager exists per
// container; it owns no package-level state.
type Manager struct {
	logger     logger.Logger
	config     ConfigSource
	admins     map[string]Admin
	checkpoint CheckpointManager
	startpoint StartpointManager
	listeners  map[string]CheckpointListener
	elasticity ElasticityStrategy

	registry *Registry
	tracker  *Tracker

	stateMu sync.Mutex
	state   State

	settings map[Stream]Setting

	// startingOffsets and startpoints are published read-only at the end
	// of Start and never mutated again, except startpoints which is
	// pruned per task during the commit pipeline under commitLocks.
	startingOffsets map[TaskName]map[SSP]string

	startpointsMu sync.Mutex
	startpoints   map[TaskName]map[SSP]Startpoint

	commitLocksMu sync.Mutex
	commitLocks   map[TaskName]*sync.Mutex
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

func WithConfigSource(c ConfigSource) ManagerOption {
	return func(m *Manager) { m.config = c }
}

func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithAdmin registers the SystemAdmin implementation for a given system
// name. The Manager looks up admins by system at every stage that needs
// broker arithmetic.
func WithAdmin(system string, admin Admin) ManagerOption {
	return func(m *Manager) { m.admins[system] = admin }
}

func WithCheckpointManager(c CheckpointManager) ManagerOption {
	return func(m *Manager) { m.checkpoint = c }
}

func WithStartpointManager(s StartpointManager) ManagerOption {
	return func(m *Manager) { m.startpoint = s }
}

// WithCheckpointListener registers a CheckpointListener for a system.
func WithCheckpointListener(system string, l CheckpointListener) ManagerOption {
	return func(m *Manager) { m.listeners[system] = l }
}

func WithElasticityStrategy(s ElasticityStrategy) ManagerOption {
	return func(m *Manager) { m.elasticity = s }
}

func WithMeter(meter metric.Meter) ManagerOption {
	return func(m *Manager) { m.registry = NewRegistry(meter) }
}

// NewManager constructs a Manager in StateUninit. Call Register for each
// task, then Start.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		admins:      make(map[string]Admin),
		listeners:   make(map[string]CheckpointListener),
		elasticity:  IdentityElasticity{},
		registry:    NewRegistry(nil),
		startpoints: make(map[TaskName]map[SSP]Startpoint),
		commitLocks: make(map[TaskName]*sync.Mutex),
		state:       StateUninit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.NewNoopLogger()
	}
	if m.config == nil {
		m.config = NewStaticConfigSource()
	}
	m.tracker = NewTracker(m.registry)
	m.state = StateRegistering
	return m
}

func (m *Manager) requireState(op string, want State) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.state != want {
		return &LifecycleError{Op: op, State: m.state, Expected: want}
	}
	return nil
}

// Register records that taskName owns ssps. Legal only in StateRegistering.
func (m *Manager) Register(taskName TaskName, ssps []SSP) error {
	if err := m.requireState("register", StateRegistering); err != nil {
		return err
	}
	return m.registry.Register(taskName, ssps)
}

// Start transitions StateRegistering -> StateStarted: it builds settings,
// freezes the registry, registers with the checkpoint store, loads and
// strips checkpoints, loads startpoints, and resolves starting offsets
// (checkpoint -> startpoint -> default fill, strict precedence).
func (m *Manager) Start(ctx context.Context, metadata map[Stream]StreamMetadata) error {
	if err := m.requireState("start", StateRegistering); err != nil {
		return err
	}

	settings, err := NewSettingsBuilder(m.config, m.logger).Build(metadata)
	if err != nil {
		return err
	}
	m.settings = settings

	m.registry.Freeze()
	tasks := m.registry.Tasks()

	lastProcessed, err := m.loadCheckpoints(ctx, tasks)
	if err != nil {
		return err
	}

	if err := m.stripResetOffsets(lastProcessed); err != nil {
		return err
	}

	loadedStartpoints, err := m.loadStartpoints(ctx, tasks)
	if err != nil {
		return err
	}

	starting, err := m.resolveStartingOffsets(ctx, tasks, lastProcessed, loadedStartpoints)
	if err != nil {
		return err
	}

	if m.startpoint != nil && len(loadedStartpoints) == 0 {
		if err := m.startpoint.Stop(ctx); err != nil {
			m.logger.Warn("failed stopping unused startpoint manager", "error", err)
		}
	}

	m.startingOffsets = starting
	m.startpoints = loadedStartpoints
	for taskName, offsets := range starting {
		m.tracker.seed(taskName, offsets)
	}

	m.stateMu.Lock()
	m.state = StateStarted
	m.stateMu.Unlock()
	return nil
}

// loadCheckpoints is CheckpointLoader (spec 4.3): skipped entirely (empty
// result) if no checkpoint store is configured. An elasticity remap is
// required iff the store's full checkpoint history indicates a prior
// deploy with elasticity enabled (any historical SSP carries a
// KeyBucket); in that case every task's effective last-processed offsets
// come from m.elasticity.Remap over the intersection of the task's
// current SSP set with the full historical checkpoint map, instead of
// the task's own last checkpoint.
func (m *Manager) loadCheckpoints(ctx context.Context, tasks []TaskName) (map[TaskName]Checkpoint, error) {
	out := make(map[TaskName]Checkpoint, len(tasks))
	if m.checkpoint == nil {
		for _, t := range tasks {
			out[t] = Checkpoint{}
		}
		return out, nil
	}

	if err := m.checkpoint.Start(ctx); err != nil {
		return nil, err
	}

	for _, taskName := range tasks {
		if err := m.checkpoint.Register(taskName); err != nil {
			return nil, err
		}
	}

	all, err := m.checkpoint.ReadAllCheckpoints(ctx)
	if err != nil {
		return nil, err
	}

	if priorDeployUsedElasticity(all) {
		historical := mergeCheckpoints(all)
		for _, taskName := range tasks {
			remapped, err := m.elasticity.Remap(taskName, m.registry.SSPsForTask(taskName), historical, m.admins)
			if err != nil {
				return nil, err
			}
			out[taskName] = m.filterCheckpointToSettings(remapped)
		}
		return out, nil
	}

	for _, taskName := range tasks {
		cp, ok, err := m.checkpoint.ReadLastCheckpoint(ctx, taskName)
		if err != nil {
			return nil, err
		}
		if !ok {
			out[taskName] = Checkpoint{}
			continue
		}
		out[taskName] = m.filterCheckpointToSettings(cp)
	}
	return out, nil
}

// filterCheckpointToSettings drops entries whose stream has no
// OffsetSetting, logging each as no-longer-an-input.
func (m *Manager) filterCheckpointToSettings(cp map[SSP]string) Checkpoint {
	filtered := make(Checkpoint, len(cp))
	for ssp, offset := range cp {
		if _, known := m.settings[ssp.Stream]; !known {
			m.logger.Info("dropping checkpoint entry for stream with no offset setting", "ssp", ssp.String())
			continue
		}
		filtered[ssp] = offset
	}
	return filtered
}

// priorDeployUsedElasticity reports whether the checkpoint store's full
// history contains any SSP carrying a KeyBucket, the signal that a prior
// deploy ran with elasticity enabled.
func priorDeployUsedElasticity(all map[TaskName]Checkpoint) bool {
	for _, cp := range all {
		for ssp := range cp {
			if ssp.KeyBucket != "" {
				return true
			}
		}
	}
	return false
}

// mergeCheckpoints flattens the store's full checkpoint history into a
// single historical view, the input ElasticityStrategy.Remap intersects
// against each task's current SSP set.
func mergeCheckpoints(all map[TaskName]Checkpoint) Checkpoint {
	merged := make(Checkpoint)
	for _, cp := range all {
		for ssp, offset := range cp {
			merged[ssp] = offset
		}
	}
	return merged
}

// stripResetOffsets implements spec 4.4: after checkpoints load, drop
// entries whose stream has resetOffset=true.
func (m *Manager) stripResetOffsets(lastProcessed map[TaskName]Checkpoint) error {
	for taskName, cp := range lastProcessed {
		for ssp := range cp {
			setting, ok := m.settings[ssp.Stream]
			if !ok {
				continue
			}
			if setting.ResetOffset {
				delete(cp, ssp)
				m.logger.Info("discarding checkpoint due to reset.offset", "task", string(taskName), "ssp", ssp.String())
			}
		}
	}
	return nil
}

// loadStartpoints implements StartpointLoader (spec 4.6).
func (m *Manager) loadStartpoints(ctx context.Context, tasks []TaskName) (map[TaskName]map[SSP]Startpoint, error) {
	out := make(map[TaskName]map[SSP]Startpoint)
	if m.startpoint == nil {
		return out, nil
	}
	if err := m.startpoint.Start(ctx); err != nil {
		return nil, err
	}

	for _, taskName := range tasks {
		fanOut, err := m.startpoint.GetFanOutForTask(ctx, taskName)
		if err != nil {
			return nil, err
		}
		if len(fanOut) == 0 {
			continue
		}
		registered := make(map[SSP]struct{})
		for _, ssp := range m.registry.SSPsForTask(taskName) {
			registered[ssp] = struct{}{}
		}
		filtered := make(map[SSP]Startpoint)
		for ssp, sp := range fanOut {
			if _, ok := registered[ssp]; ok {
				filtered[ssp] = sp
			}
		}
		if len(filtered) > 0 {
			out[taskName] = filtered
		}
	}
	return out, nil
}

// resolveStartingOffsets is OffsetResolver (spec 4.5): three strict-precedence
// stages, A (offset-after-checkpoint) < B (startpoint overwrite) < C (default
// fill never overwrites A or B).
func (m *Manager) resolveStartingOffsets(
	ctx context.Context,
	tasks []TaskName,
	lastProcessed map[TaskName]Checkpoint,
	startpoints map[TaskName]map[SSP]Startpoint,
) (map[TaskName]map[SSP]string, error) {
	starting := make(map[TaskName]map[SSP]string, len(tasks))
	for _, t := range tasks {
		starting[t] = make(map[SSP]string)
	}

	// Stage A: group remaining lastProcessedOffsets by system, ask each
	// system's admin for the next offset to read.
	for taskName, cp := range lastProcessed {
		bySystem := make(map[string]map[SSP]string)
		for ssp, offset := range cp {
			bySystem[ssp.Stream.System] = addEntry(bySystem[ssp.Stream.System], ssp, offset)
		}
		for system, offsets := range bySystem {
			admin, ok := m.admins[system]
			if !ok {
				continue
			}
			after, err := admin.GetOffsetsAfter(ctx, offsets)
			if err != nil {
				return nil, err
			}
			for ssp, offset := range after {
				starting[taskName][ssp] = offset
			}
		}
	}

	// Stage B: startpoint overwrite, strictly higher precedence than A.
	for taskName, sps := range startpoints {
		for ssp, sp := range sps {
			admin, ok := m.admins[ssp.Stream.System]
			if !ok {
				m.logger.Warn("no admin for startpoint system, falling through to default", "ssp", ssp.String())
				continue
			}
			resolved, err := admin.ResolveStartpointToOffset(ctx, ssp, sp)
			if err != nil {
				m.logger.Info(
					"startpoint resolution failed, falling through to default",
					"error", (&StartpointResolutionError{SSP: ssp, Startpoint: sp, Cause: err}).Error(),
				)
				continue
			}
			if resolved == "" {
				continue
			}
			starting[taskName][ssp] = resolved
		}
	}

	// Stage C: default-fill anything still missing for every registered SSP.
	for _, taskName := range tasks {
		for _, ssp := range m.registry.SSPsForTask(taskName) {
			if _, ok := starting[taskName][ssp]; ok {
				continue
			}
			offset, err := m.defaultOffsetFor(ssp)
			if err != nil {
				return nil, err
			}
			starting[taskName][ssp] = offset
		}
	}

	return starting, nil
}

func (m *Manager) defaultOffsetFor(ssp SSP) (string, error) {
	setting, ok := m.settings[ssp.Stream]
	if !ok {
		return "", &MetadataMissingError{Stream: ssp.Stream}
	}
	partMeta, ok := setting.Metadata[ssp.Partition]
	if !ok {
		return "", &MetadataMissingError{Stream: ssp.Stream}
	}
	if offset, ok := partMeta.Offset(setting.DefaultOffset); ok {
		return offset, nil
	}
	// Stream empty for the configured default; fall back to Upcoming.
	m.logger.Warn("default offset empty for partition, falling back to upcoming", "ssp", ssp.String())
	if offset, ok := partMeta.Offset(Upcoming); ok {
		return offset, nil
	}
	return "", &MetadataMissingError{Stream: ssp.Stream}
}

func addEntry(m map[SSP]string, ssp SSP, offset string) map[SSP]string {
	if m == nil {
		m = make(map[SSP]string)
	}
	m[ssp] = offset
	return m
}

// Update records the last-processed offset for (taskName, ssp). Legal
// only in StateStarted.
func (m *Manager) Update(taskName TaskName, ssp SSP, offset string) error {
	if err := m.requireState("update", StateStarted); err != nil {
		return err
	}
	return m.tracker.Update(taskName, ssp, offset)
}

// GetLastProcessedOffsets returns a point-in-time snapshot of taskName's
// last-processed offsets. Legal only in StateStarted.
func (m *Manager) GetLastProcessedOffsets(taskName TaskName) (Checkpoint, error) {
	if err := m.requireState("getLastProcessedOffsets", StateStarted); err != nil {
		return nil, err
	}
	return m.tracker.Snapshot(taskName), nil
}

// StartingOffsets returns the resolved starting position for every SSP of
// taskName, computed once during Start and read-only thereafter.
func (m *Manager) StartingOffsets(taskName TaskName) map[SSP]string {
	return m.startingOffsets[taskName]
}

// GetModifiedOffsets implements spec 4.9: pre-commit listener consultation,
// separate from WriteCheckpoint so a container may ask what it should
// checkpoint before constructing the Checkpoint value.
func (m *Manager) GetModifiedOffsets(ctx context.Context, taskName TaskName) (map[SSP]string, error) {
	if err := m.requireState("getModifiedOffsets", StateStarted); err != nil {
		return nil, err
	}

	base := m.tracker.Snapshot(taskName)
	bySystem := make(map[string]map[SSP]string)
	for ssp, offset := range base {
		bySystem[ssp.Stream.System] = addEntry(bySystem[ssp.Stream.System], ssp, offset)
	}

	starting := m.startingOffsets[taskName]
	result := make(map[SSP]string, len(base))
	for ssp, offset := range base {
		result[ssp] = offset
	}

	for system, offsets := range bySystem {
		listener, ok := m.listeners[system]
		if !ok {
			continue
		}
		admin := m.admins[system]
		// needModified triggers once the task has read past its starting
		// offset on at least one SSP of this system: brokers that can't
		// produce a safe-to-commit offset before the first successful
		// poll would otherwise see spurious listener failures.
		// Incomparable pairs never trigger it.
		needModified := false
		for ssp, lastProcessed := range offsets {
			startingOffset, ok := starting[ssp]
			if !ok {
				continue
			}
			if admin == nil {
				continue
			}
			cmp, comparable := admin.OffsetComparator(lastProcessed, startingOffset)
			if comparable && cmp > 0 {
				needModified = true
				break
			}
		}
		if !needModified {
			continue
		}
		modified, err := listener.BeforeCheckpoint(ctx, offsets)
		if err != nil {
			return nil, &ListenerError{Hook: "beforeCheckpoint", Cause: err}
		}
		for ssp, offset := range modified {
			result[ssp] = offset
		}
	}

	return result, nil
}

// WriteCheckpoint implements CommitPipeline (spec 4.8). Serialized per
// task: the store write, listener call, and startpoint cleanup form one
// critical section for a given task; distinct tasks commit independently.
func (m *Manager) WriteCheckpoint(ctx context.Context, taskName TaskName, checkpoint Checkpoint) error {
	if err := m.requireState("writeCheckpoint", StateStarted); err != nil {
		return err
	}
	if m.checkpoint == nil && len(m.listeners) == 0 {
		return fmt.Errorf("offset: writeCheckpoint requires a checkpoint store or at least one listener")
	}
	if checkpoint == nil {
		return nil
	}

	lock := m.commitLockFor(taskName)
	lock.Lock()
	defer lock.Unlock()

	if m.checkpoint != nil {
		if err := m.checkpoint.WriteCheckpoint(ctx, taskName, checkpoint); err != nil {
			return err
		}
		for ssp, offset := range checkpoint {
			m.registry.ObserveOffset(ssp, offset)
		}
	}

	registered := make(map[SSP]struct{})
	for _, ssp := range m.registry.SSPsForTask(taskName) {
		registered[ssp] = struct{}{}
	}
	bySystem := make(map[string]map[SSP]string)
	for ssp, offset := range checkpoint {
		if _, ok := registered[ssp]; !ok {
			continue
		}
		bySystem[ssp.Stream.System] = addEntry(bySystem[ssp.Stream.System], ssp, offset)
	}
	for system, offsets := range bySystem {
		listener, ok := m.listeners[system]
		if !ok {
			continue
		}
		if err := listener.OnCheckpoint(ctx, offsets); err != nil {
			return &ListenerError{Hook: "onCheckpoint", Cause: err}
		}
	}

	return m.cleanupStartpoints(ctx, taskName)
}

func (m *Manager) cleanupStartpoints(ctx context.Context, taskName TaskName) error {
	if m.startpoint == nil {
		return nil
	}

	m.startpointsMu.Lock()
	_, hadStartpoints := m.startpoints[taskName]
	if hadStartpoints {
		delete(m.startpoints, taskName)
	}
	remaining := len(m.startpoints)
	m.startpointsMu.Unlock()

	if !hadStartpoints {
		return nil
	}
	if err := m.startpoint.RemoveFanOutForTask(ctx, taskName); err != nil {
		return err
	}
	if remaining == 0 {
		if err := m.startpoint.Stop(ctx); err != nil {
			m.logger.Warn("failed stopping startpoint manager after last fan-out absorbed", "error", err)
		}
	}
	return nil
}

func (m *Manager) commitLockFor(taskName TaskName) *sync.Mutex {
	m.commitLocksMu.Lock()
	defer m.commitLocksMu.Unlock()
	l, ok := m.commitLocks[taskName]
	if !ok {
		l = &sync.Mutex{}
		m.commitLocks[taskName] = l
	}
	return l
}

// Stop is idempotent: it stops the checkpoint and startpoint stores if
// configured and transitions to StateStopped. Cooperative only; it does
// not interrupt in-flight store or listener calls.
func (m *Manager) Stop(ctx context.Context) error {
	m.stateMu.Lock()
	if m.state == StateStopped {
		m.stateMu.Unlock()
		return nil
	}
	m.state = StateStopped
	m.stateMu.Unlock()

	var firstErr error
	if m.checkpoint != nil {
		if err := m.checkpoint.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.startpoint != nil {
		if err := m.startpoint.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
