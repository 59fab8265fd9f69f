//go:build unit

package offset_test

import (
	"context"
	"strconv"

	"github.com/erikmalm/streamworks/checkpoint"
	"github.com/erikmalm/streamworks/offset"
	"github.com/erikmalm/streamworks/startpoint"
)

func numericComparator(a, b string) (int, bool) {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}

func checkpointManagerWith(taskName offset.TaskName, cp offset.Checkpoint) *checkpoint.MemoryManager {
	m := checkpoint.NewMemoryManager()
	m.Seed(taskName, cp)
	return m
}

func newMemoryCheckpointManager() *checkpoint.MemoryManager {
	return checkpoint.NewMemoryManager()
}

func newSeededStartpointManager(taskName offset.TaskName, entries map[offset.SSP]offset.Startpoint) *startpoint.MemoryManager {
	m := startpoint.NewMemoryManager()
	m.Seed(taskName, entries)
	return m
}

// splitBucketElasticity is a non-identity offset.ElasticityStrategy: it
// resolves every SSP in ssps against the historical checkpoint under the
// same stream/partition regardless of KeyBucket, taking the maximum
// historical offset across all buckets that fed the partition. This
// models the "many key buckets merge back into one partition" shape of
// an elasticity remap.
type splitBucketElasticity struct {
	calls   []offset.TaskName
	outputs map[offset.TaskName]map[offset.SSP]string
}

func (s *splitBucketElasticity) Remap(
	taskName offset.TaskName, ssps []offset.SSP, historical offset.Checkpoint, _ map[string]offset.Admin,
) (map[offset.SSP]string, error) {
	s.calls = append(s.calls, taskName)

	out := make(map[offset.SSP]string, len(ssps))
	for _, target := range ssps {
		best := ""
		for ssp, off := range historical {
			if ssp.Stream != target.Stream || ssp.Partition != target.Partition {
				continue
			}
			if best == "" || off > best {
				best = off
			}
		}
		if best != "" {
			out[target] = best
		}
	}
	if s.outputs == nil {
		s.outputs = make(map[offset.TaskName]map[offset.SSP]string)
	}
	s.outputs[taskName] = out
	return out, nil
}

type fakeListener struct {
	rewrite           map[offset.SSP]string
	onCheckpointCalls []map[offset.SSP]string
}

func newFakeListener(rewrite map[offset.SSP]string) *fakeListener {
	return &fakeListener{rewrite: rewrite}
}

func (l *fakeListener) BeforeCheckpoint(_ context.Context, _ map[offset.SSP]string) (map[offset.SSP]string, error) {
	return l.rewrite, nil
}

func (l *fakeListener) OnCheckpoint(_ context.Context, offsets map[offset.SSP]string) error {
	l.onCheckpointCalls = append(l.onCheckpointCalls, offsets)
	return nil
}
