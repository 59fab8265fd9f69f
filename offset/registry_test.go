//go:build unit

package offset_test

import (
	"testing"

	"github.com/erikmalm/streamworks/offset"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndFreeze(t *testing.T) {
	t.Parallel()

	r := offset.NewRegistry(nil)
	target := ssp("topicX", 0)

	require.NoError(t, r.Register(testTask, []offset.SSP{target}))
	owner, ok := r.TaskFor(target)
	require.True(t, ok)
	require.Equal(t, testTask, owner)

	r.Freeze()
	err := r.Register(testTask, []offset.SSP{ssp("topicX", 1)})
	require.Error(t, err)
	_, ok = offset.AsLifecycleError(err)
	require.True(t, ok)
}

func TestRegistry_SSPsForTaskAndAllSSPs(t *testing.T) {
	t.Parallel()

	r := offset.NewRegistry(nil)
	a, b := ssp("topicX", 0), ssp("topicX", 1)
	require.NoError(t, r.Register(testTask, []offset.SSP{a, b}))

	require.ElementsMatch(t, []offset.SSP{a, b}, r.SSPsForTask(testTask))
	require.ElementsMatch(t, []offset.SSP{a, b}, r.AllSSPs())
}
