//go:build unit

package startpoint_test

import (
	"context"
	"testing"

	"github.com/erikmalm/streamworks/offset"
	"github.com/erikmalm/streamworks/startpoint"
	"github.com/stretchr/testify/require"
)

func TestMemoryManager_SeedThenGetFanOutForTask(t *testing.T) {
	t.Parallel()

	target := offset.SSP{Stream: offset.Stream{System: "sysA", Name: "topicX"}, Partition: 0}
	m := startpoint.NewMemoryManager()
	require.False(t, m.Pending())

	m.Seed("t0", map[offset.SSP]offset.Startpoint{target: offset.OldestStartpoint{}})
	require.True(t, m.Pending())

	fanOut, err := m.GetFanOutForTask(context.Background(), "t0")
	require.NoError(t, err)
	require.Equal(t, offset.OldestStartpoint{}, fanOut[target])
}

func TestMemoryManager_GetFanOutForTaskMissingReturnsNil(t *testing.T) {
	t.Parallel()

	m := startpoint.NewMemoryManager()
	fanOut, err := m.GetFanOutForTask(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, fanOut)
}

func TestMemoryManager_RemoveFanOutForTaskClearsPending(t *testing.T) {
	t.Parallel()

	target := offset.SSP{Stream: offset.Stream{System: "sysA", Name: "topicX"}, Partition: 0}
	m := startpoint.NewMemoryManager()
	m.Seed("t0", map[offset.SSP]offset.Startpoint{target: offset.UpcomingStartpoint{}})

	require.NoError(t, m.RemoveFanOutForTask(context.Background(), "t0"))
	require.False(t, m.Pending())

	fanOut, err := m.GetFanOutForTask(context.Background(), "t0")
	require.NoError(t, err)
	require.Nil(t, fanOut)
}
