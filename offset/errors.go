package offset

import (
	"errors"
	"fmt"
)

// ConfigError signals a malformed or contradictory per-stream setting,
// e.g. an unparsable default-offset policy. Raised during SettingsBuilder.Build.
type ConfigError struct {
	Stream Stream
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("offset: invalid config for %s: %s", e.Stream, e.Reason)
}

func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	ok := errors.As(err, &ce)
	return ce, ok
}

// MetadataMissingError signals that no broker metadata was supplied for a
// Stream the registry was asked to resolve offsets for.
type MetadataMissingError struct {
	Stream Stream
}

func (e *MetadataMissingError) Error() string {
	return fmt.Sprintf("offset: no broker metadata for stream %s", e.Stream)
}

func AsMetadataMissingError(err error) (*MetadataMissingError, bool) {
	var me *MetadataMissingError
	ok := errors.As(err, &me)
	return me, ok
}

// UnknownPartitionError signals a reference to an SSP that was never
// registered with the Manager.
type UnknownPartitionError struct {
	SSP SSP
}

func (e *UnknownPartitionError) Error() string {
	return fmt.Sprintf("offset: unknown partition %s", e.SSP)
}

func AsUnknownPartitionError(err error) (*UnknownPartitionError, bool) {
	var ue *UnknownPartitionError
	ok := errors.As(err, &ue)
	return ue, ok
}

// LifecycleError signals a call made in the wrong Manager lifecycle state,
// e.g. Register after Start, or Update before Start.
type LifecycleError struct {
	Op       string
	State    State
	Expected State
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("offset: %s invalid in state %s, expected %s", e.Op, e.State, e.Expected)
}

func AsLifecycleError(err error) (*LifecycleError, bool) {
	var le *LifecycleError
	ok := errors.As(err, &le)
	return le, ok
}

// StartpointResolutionError wraps a failure to resolve a single Startpoint
// to a concrete offset. The resolver logs and discards these per entry;
// they never propagate out of Manager.Start.
type StartpointResolutionError struct {
	SSP        SSP
	Startpoint Startpoint
	Cause      error
}

func (e *StartpointResolutionError) Error() string {
	return fmt.Sprintf("offset: resolving startpoint %s for %s: %v", e.Startpoint.Type(), e.SSP, e.Cause)
}

func (e *StartpointResolutionError) Unwrap() error {
	return e.Cause
}

func AsStartpointResolutionError(err error) (*StartpointResolutionError, bool) {
	var se *StartpointResolutionError
	ok := errors.As(err, &se)
	return se, ok
}

// ListenerError wraps an error returned by a CheckpointListener hook.
// WriteCheckpoint and GetModifiedOffsets return it to the caller, ending
// that call: later listeners and the startpoint cleanup are skipped.
type ListenerError struct {
	Hook  string
	Cause error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("offset: checkpoint listener %s failed: %v", e.Hook, e.Cause)
}

func (e *ListenerError) Unwrap() error {
	return e.Cause
}

func AsListenerError(err error) (*ListenerError, bool) {
	var le *ListenerError
	ok := errors.As(err, &le)
	return le, ok
}
