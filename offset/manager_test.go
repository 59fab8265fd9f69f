//go:build unit

package offset_test

import (
	"context"
	"testing"

	"github.com/erikmalm/streamworks/checkpoint"
	"github.com/erikmalm/streamworks/offset"
	mockadmin "github.com/erikmalm/streamworks/offsystem/mock"
	"github.com/stretchr/testify/require"
)

const testTask offset.TaskName = "t0"

func stream(name string) offset.Stream {
	return offset.Stream{System: "sysA", Name: name}
}

func ssp(name string, partition int32) offset.SSP {
	return offset.SSP{Stream: stream(name), Partition: partition}
}

// Scenario 1: cold start, no checkpoint, no startpoint, default=OLDEST.
func TestStart_ColdStartDefaultOldest(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "oldest"

	m := offset.NewManager(offset.WithConfigSource(config))
	require.NoError(t, m.Register(testTask, []offset.SSP{ssp("topicX", 0)}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {
			0: {Oldest: "10", Upcoming: "42"},
		},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, map[offset.SSP]string{ssp("topicX", 0): "10"}, m.StartingOffsets(testTask))
}

// Scenario 2: warm start with checkpoint; getOffsetsAfter adds one.
func TestStart_WarmStartFromCheckpoint(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "oldest"

	target := ssp("topicX", 0)
	checkpoints := checkpointManagerWith(testTask, offset.Checkpoint{target: "100"})
	admin := mockadmin.New(mockadmin.WithOffsetAfter(target, "101"))

	m := offset.NewManager(
		offset.WithConfigSource(config),
		offset.WithCheckpointManager(checkpoints),
		offset.WithAdmin("sysA", admin),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Oldest: "10", Upcoming: "42"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, "101", m.StartingOffsets(testTask)[target])
}

// Scenario 3: reset overrides checkpoint.
func TestStart_ResetOverridesCheckpoint(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "newest"
	config.Bools["streams.topicX.samza.reset.offset"] = true

	target := ssp("topicX", 0)
	checkpoints := checkpointManagerWith(testTask, offset.Checkpoint{target: "100"})
	admin := mockadmin.New(mockadmin.WithOffsetAfter(target, "101"))

	m := offset.NewManager(
		offset.WithConfigSource(config),
		offset.WithCheckpointManager(checkpoints),
		offset.WithAdmin("sysA", admin),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Newest: "500"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, "500", m.StartingOffsets(testTask)[target])
	require.Zero(t, admin.GetOffsetsAfterCalls(), "reset checkpoint must never reach Stage A")
}

// Scenario 4: startpoint overrides checkpoint, and is cleaned up after commit.
func TestStart_StartpointOverridesCheckpoint(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "oldest"

	target := ssp("topicX", 0)
	checkpoints := checkpointManagerWith(testTask, offset.Checkpoint{target: "100"})
	startpoints := newSeededStartpointManager(testTask, map[offset.SSP]offset.Startpoint{
		target: offset.SpecificOffsetStartpoint{Offset: "raw"},
	})
	admin := mockadmin.New(
		mockadmin.WithOffsetAfter(target, "101"),
		mockadmin.WithStartpointResolution(target, "250"),
	)

	m := offset.NewManager(
		offset.WithConfigSource(config),
		offset.WithCheckpointManager(checkpoints),
		offset.WithStartpointManager(startpoints),
		offset.WithAdmin("sysA", admin),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Oldest: "10"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, "250", m.StartingOffsets(testTask)[target])

	require.NoError(t, m.WriteCheckpoint(context.Background(), testTask, offset.Checkpoint{target: "250"}))
	require.False(t, startpoints.Pending(), "fan-out must be removed once absorbed into a checkpoint")
}

// Scenario 4b: a prior elasticity-enabled deploy left key-bucketed SSPs in
// the checkpoint history; CheckpointLoader must detect that and delegate
// to the configured ElasticityStrategy instead of reading testTask's own
// last checkpoint.
func TestStart_ElasticityRemapAppliesOnPriorElasticDeploy(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "oldest"

	target := ssp("topicX", 0)
	oldTask := offset.TaskName("t0-bucket-a")
	history := checkpoint.NewMemoryManager()
	history.Seed(oldTask, offset.Checkpoint{
		offset.SSP{Stream: stream("topicX"), Partition: 0, KeyBucket: "a"}: "100",
		offset.SSP{Stream: stream("topicX"), Partition: 0, KeyBucket: "b"}: "150",
	})

	strategy := &splitBucketElasticity{}
	admin := mockadmin.New(mockadmin.WithOffsetAfter(target, "999"))

	m := offset.NewManager(
		offset.WithConfigSource(config),
		offset.WithCheckpointManager(history),
		offset.WithElasticityStrategy(strategy),
		offset.WithAdmin("sysA", admin),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Oldest: "10"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, []offset.TaskName{testTask}, strategy.calls, "elasticity remap must run once per registered task")
	require.Equal(
		t, map[offset.SSP]string{target: "150"}, strategy.outputs[testTask],
		"remap picks the max of the merged bucket offsets, not testTask's own (nonexistent) checkpoint",
	)
	require.Equal(t, 1, admin.GetOffsetsAfterCalls(), "remap output must still flow through stage A like any other checkpoint")
	require.Equal(t, "999", m.StartingOffsets(testTask)[target], "stage A's getOffsetsAfter runs on the remapped last-processed offset")
}

// Scenario 5: listener rewrites offsets in getModifiedOffsets.
func TestGetModifiedOffsets_ListenerRewrite(t *testing.T) {
	t.Parallel()

	target := ssp("topicX", 0)
	admin := mockadmin.New(mockadmin.WithComparator(numericComparator))
	listener := newFakeListener(map[offset.SSP]string{target: "6"})

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "oldest"

	m := offset.NewManager(
		offset.WithConfigSource(config),
		offset.WithAdmin("sysA", admin),
		offset.WithCheckpointListener("sysA", listener),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Oldest: "5"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))
	require.NoError(t, m.Update(testTask, target, "7"))

	modified, err := m.GetModifiedOffsets(context.Background(), testTask)
	require.NoError(t, err)
	require.Equal(t, map[offset.SSP]string{target: "6"}, modified)
}

// Scenario 6: empty stream for the configured default falls back to Upcoming.
func TestStart_EmptyStreamFallsBackToUpcoming(t *testing.T) {
	t.Parallel()

	config := offset.NewStaticConfigSource()
	config.Strings["streams.topicX.samza.offset.default"] = "newest"

	target := ssp("topicX", 0)
	m := offset.NewManager(offset.WithConfigSource(config))
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))

	metadata := map[offset.Stream]offset.StreamMetadata{
		stream("topicX"): {0: {Upcoming: "0"}},
	}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Equal(t, "0", m.StartingOffsets(testTask)[target])
}

func TestStart_MetadataMissingFailsStart(t *testing.T) {
	t.Parallel()

	m := offset.NewManager()
	require.NoError(t, m.Register(testTask, []offset.SSP{ssp("topicX", 0)}))

	err := m.Start(context.Background(), map[offset.Stream]offset.StreamMetadata{})
	require.Error(t, err)
	_, ok := offset.AsMetadataMissingError(err)
	require.True(t, ok)
}

func TestLifecycle_OperationsRequireCorrectState(t *testing.T) {
	t.Parallel()

	m := offset.NewManager()
	require.NoError(t, m.Register(testTask, []offset.SSP{ssp("topicX", 0)}))

	err := m.Update(testTask, ssp("topicX", 0), "1")
	require.Error(t, err)
	_, ok := offset.AsLifecycleError(err)
	require.True(t, ok)

	metadata := map[offset.Stream]offset.StreamMetadata{stream("topicX"): {0: {Upcoming: "0"}}}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.Error(t, m.Register(testTask, []offset.SSP{ssp("topicX", 1)}))
	require.NoError(t, m.Update(testTask, ssp("topicX", 0), "1"))
}

func TestUpdate_EndOfStreamAndBlankAreNoOps(t *testing.T) {
	t.Parallel()

	target := ssp("topicX", 0)
	m := offset.NewManager()
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))
	metadata := map[offset.Stream]offset.StreamMetadata{stream("topicX"): {0: {Upcoming: "0"}}}
	require.NoError(t, m.Start(context.Background(), metadata))

	require.NoError(t, m.Update(testTask, target, "5"))
	require.NoError(t, m.Update(testTask, target, offset.EndOfStream))
	require.NoError(t, m.Update(testTask, target, ""))

	cp, err := m.GetLastProcessedOffsets(testTask)
	require.NoError(t, err)
	require.Equal(t, "5", cp[target])
}

func TestUpdate_UnknownPartition(t *testing.T) {
	t.Parallel()

	m := offset.NewManager()
	require.NoError(t, m.Register(testTask, []offset.SSP{ssp("topicX", 0)}))
	metadata := map[offset.Stream]offset.StreamMetadata{stream("topicX"): {0: {Upcoming: "0"}}}
	require.NoError(t, m.Start(context.Background(), metadata))

	err := m.Update(testTask, ssp("topicX", 1), "5")
	require.Error(t, err)
	_, ok := offset.AsUnknownPartitionError(err)
	require.True(t, ok)
}

func TestWriteCheckpoint_Idempotent(t *testing.T) {
	t.Parallel()

	target := ssp("topicX", 0)
	checkpoints := newMemoryCheckpointManager()
	startpoints := newSeededStartpointManager(testTask, map[offset.SSP]offset.Startpoint{
		target: offset.OldestStartpoint{},
	})
	admin := mockadmin.New(mockadmin.WithStartpointResolution(target, "10"))

	m := offset.NewManager(
		offset.WithCheckpointManager(checkpoints),
		offset.WithStartpointManager(startpoints),
		offset.WithAdmin("sysA", admin),
	)
	require.NoError(t, m.Register(testTask, []offset.SSP{target}))
	metadata := map[offset.Stream]offset.StreamMetadata{stream("topicX"): {0: {Oldest: "1"}}}
	require.NoError(t, m.Start(context.Background(), metadata))

	cp := offset.Checkpoint{target: "10"}
	require.NoError(t, m.WriteCheckpoint(context.Background(), testTask, cp))
	require.NoError(t, m.WriteCheckpoint(context.Background(), testTask, cp))

	stored, ok, err := checkpoints.ReadLastCheckpoint(context.Background(), testTask)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10", stored[target])
}
