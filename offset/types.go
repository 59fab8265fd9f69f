// Package offset implements the per-container offset coordination core:
// it reconciles startpoints, checkpoints, and broker defaults into a
// starting position for every registered partition, tracks the last
// successfully processed position while a task runs, and drives the
// commit pipeline that makes progress durable.
package offset

import (
	"strconv"
	"strings"
)

// EndOfStream is the sentinel offset value meaning "no further records
// exist on this partition". Tracker.Update treats it as a no-op, matching
// a broker adapter that reports it after draining a compacted or
// bounded partition.
const EndOfStream = "@end-of-stream@"

// Stream identifies a partitioned input by system and name. Two Streams
// are equal iff both fields match.
type Stream struct {
	System string
	Name   string
}

func (s Stream) String() string {
	return s.System + "." + s.Name
}

// SSP is a SystemStreamPartition: one addressable partition of a Stream.
// KeyBucket is empty outside of elasticity; when non-empty it participates
// in identity, so two SSPs that differ only by KeyBucket are distinct.
type SSP struct {
	Stream    Stream
	Partition int32
	KeyBucket string
}

func (s SSP) String() string {
	base := s.Stream.String() + "#" + strconv.FormatInt(int64(s.Partition), 10)
	if s.KeyBucket == "" {
		return base
	}
	return base + "@" + s.KeyBucket
}

// TaskName is the opaque identifier of a logical task. A task owns a set
// of SSPs disjoint across tasks within a container.
type TaskName string

// DefaultOffset is the broker-default starting policy for a stream when
// no checkpoint or startpoint applies.
type DefaultOffset int

const (
	// Upcoming is the safe default when no policy is configured.
	Upcoming DefaultOffset = iota
	Oldest
	Newest
)

func (d DefaultOffset) String() string {
	switch d {
	case Oldest:
		return "oldest"
	case Newest:
		return "newest"
	case Upcoming:
		return "upcoming"
	default:
		return "unknown"
	}
}

// ParseDefaultOffset parses a case-insensitive offset-default string as
// found in streams.<stream>.samza.offset.default / the per-system fallback.
func ParseDefaultOffset(s string) (DefaultOffset, bool) {
	switch strings.ToLower(s) {
	case "oldest":
		return Oldest, true
	case "newest":
		return Newest, true
	case "upcoming":
		return Upcoming, true
	default:
		return Upcoming, false
	}
}

// PartitionMetadata is the broker-reported set of well-known offsets for
// one partition.
type PartitionMetadata struct {
	Oldest   string
	Newest   string
	Upcoming string
}

// Offset returns the metadata value for the requested default policy.
// The second return is false if the stream is empty for that policy
// (broker reported no offset, e.g. a freshly created empty topic).
func (m PartitionMetadata) Offset(d DefaultOffset) (string, bool) {
	var v string
	switch d {
	case Oldest:
		v = m.Oldest
	case Newest:
		v = m.Newest
	case Upcoming:
		v = m.Upcoming
	}
	return v, v != ""
}

// StreamMetadata is the broker-reported metadata for every partition of a
// Stream, keyed by partition number.
type StreamMetadata map[int32]PartitionMetadata

// Setting binds a Stream's broker metadata to its default-offset policy
// and reset flag. Immutable once built by SettingsBuilder.
type Setting struct {
	Metadata      StreamMetadata
	DefaultOffset DefaultOffset
	ResetOffset   bool
}

// Checkpoint is a durable snapshot of SSP to offset for one task. It may
// contain SSPs beyond the container's registered set (e.g. changelog
// partitions owned by state management); those extras pass through to the
// checkpoint store untouched but never flow through the listener or
// tracker paths.
type Checkpoint map[SSP]string

// Copy returns an independent copy of the checkpoint.
func (c Checkpoint) Copy() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
