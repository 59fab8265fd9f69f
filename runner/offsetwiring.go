package runner

import (
	"context"
	"strconv"

	"github.com/erikmalm/streamworks/kafka"
	"github.com/erikmalm/streamworks/logger"
	"github.com/erikmalm/streamworks/offset"
)

// offsetBinding ties the generic offset coordination core to the
// partitions a Kafka runner has actually been assigned. Kafka's
// consumer-group protocol reassigns partitions at any time; offset.Manager
// models a container whose task set is registered once and fixed for its
// lifetime (Register* then Start). The binding reconciles the two by
// registering only the first wave of assignments it observes: later
// rebalances are logged and otherwise ignored rather than failing the
// runner. Safe to use with a nil *offset.Manager (every method becomes a
// no-op), so runners can embed a binding unconditionally.
type offsetBinding struct {
	manager *offset.Manager
	tasks   map[kafka.TopicPartition]offset.TaskName
	started bool
	logger  logger.Logger
}

func newOffsetBinding(m *offset.Manager, l logger.Logger) *offsetBinding {
	return &offsetBinding{
		manager: m,
		tasks:   make(map[kafka.TopicPartition]offset.TaskName),
		logger:  l,
	}
}

func offsetTaskName(tp kafka.TopicPartition) offset.TaskName {
	return offset.TaskName(tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10))
}

func offsetSSP(tp kafka.TopicPartition) offset.SSP {
	return offset.SSP{Stream: offset.Stream{System: "kafka", Name: tp.Topic}, Partition: tp.Partition}
}

// onAssigned registers newly assigned partitions as single-SSP tasks and
// starts the manager once the first wave of assignments lands.
//
// Stage C of the manager's startup (default-fill) needs broker-reported
// partition metadata; the Kafka consumer used by the runner doesn't expose
// it (that lives with the kadm-backed admin client wired at the offsystem
// layer, not through this package's Consumer interface), so every
// partition is bootstrapped with synthetic all-zero metadata. That only
// matters for a partition with neither a checkpoint nor a startpoint,
// where "0" is a conservative choice: it resumes from the start of the
// partition rather than silently skipping unprocessed data.
func (b *offsetBinding) onAssigned(ctx context.Context, partitions []kafka.TopicPartition) {
	if b == nil || b.manager == nil {
		return
	}

	if b.started {
		b.logger.Warn("offset manager already started, ignoring rebalanced partitions", "partitions", partitions)
		return
	}

	metadata := make(map[offset.Stream]offset.StreamMetadata)
	for _, tp := range partitions {
		taskName := offsetTaskName(tp)
		ssp := offsetSSP(tp)

		if err := b.manager.Register(taskName, []offset.SSP{ssp}); err != nil {
			b.logger.Error("failed to register offset task", "error", err, "partition", tp)
			return
		}
		b.tasks[tp] = taskName

		stream := ssp.Stream
		sm, ok := metadata[stream]
		if !ok {
			sm = make(offset.StreamMetadata)
			metadata[stream] = sm
		}
		sm[tp.Partition] = offset.PartitionMetadata{Oldest: "0", Newest: "0", Upcoming: "0"}
	}

	if err := b.manager.Start(ctx, metadata); err != nil {
		b.logger.Error("failed to start offset manager", "error", err)
		return
	}

	b.started = true
}

// update records the offset of the next record to read for tp, matching
// "resume immediately after the last processed record".
func (b *offsetBinding) update(tp kafka.TopicPartition, nextOffset int64) {
	if b == nil || b.manager == nil || !b.started {
		return
	}

	taskName, ok := b.tasks[tp]
	if !ok {
		return
	}

	if err := b.manager.Update(taskName, offsetSSP(tp), strconv.FormatInt(nextOffset, 10)); err != nil {
		b.logger.Warn("failed to update tracked offset", "error", err, "partition", tp)
	}
}

// writeCheckpoint runs the pre-commit listener hook and commit pipeline
// for every task currently bound, ahead of the caller's own Kafka commit.
func (b *offsetBinding) writeCheckpoint(ctx context.Context) {
	if b == nil || b.manager == nil || !b.started {
		return
	}

	seen := make(map[offset.TaskName]struct{}, len(b.tasks))
	for _, taskName := range b.tasks {
		if _, done := seen[taskName]; done {
			continue
		}
		seen[taskName] = struct{}{}

		modified, err := b.manager.GetModifiedOffsets(ctx, taskName)
		if err != nil {
			b.logger.Warn("failed to compute modified offsets", "error", err, "task", taskName)
			continue
		}
		if len(modified) == 0 {
			continue
		}

		if err := b.manager.WriteCheckpoint(ctx, taskName, offset.Checkpoint(modified)); err != nil {
			b.logger.Warn("failed to write checkpoint", "error", err, "task", taskName)
		}
	}
}

// forget drops tracking for revoked partitions. The underlying manager has
// no per-partition teardown (its task set is fixed once started), so this
// only prevents the binding from addressing stale partitions going forward.
func (b *offsetBinding) forget(partitions []kafka.TopicPartition) {
	if b == nil {
		return
	}
	for _, tp := range partitions {
		delete(b.tasks, tp)
	}
}

func (b *offsetBinding) stop(ctx context.Context) {
	if b == nil || b.manager == nil || !b.started {
		return
	}
	if err := b.manager.Stop(ctx); err != nil {
		b.logger.Warn("failed to stop offset manager", "error", err)
	}
}
