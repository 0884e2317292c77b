package disruptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepGraphRegisterReturnsOnlyIncompleteDeps(t *testing.T) {
	g := newDepGraph()
	completed := map[string]bool{"a": true}
	isCompleted := func(id string) bool { return completed[id] }

	missing := g.register("child", []string{"a", "b", "c"}, isCompleted)

	assert.ElementsMatch(t, []string{"b", "c"}, missing)
}

func TestDepGraphCompleteUnblocksWaiters(t *testing.T) {
	g := newDepGraph()
	isCompleted := func(string) bool { return false }

	g.register("child", []string{"a", "b"}, isCompleted)

	unblocked := g.complete("a")
	assert.Empty(t, unblocked, "child still waits on b")

	unblocked = g.complete("b")
	assert.Equal(t, []string{"child"}, unblocked)
}

func TestDepGraphCompleteOnlyUnblocksFullySatisfiedWaiters(t *testing.T) {
	g := newDepGraph()
	isCompleted := func(string) bool { return false }

	g.register("child1", []string{"a"}, isCompleted)
	g.register("child2", []string{"a", "b"}, isCompleted)

	unblocked := g.complete("a")
	assert.ElementsMatch(t, []string{"child1"}, unblocked)

	unblocked = g.complete("b")
	assert.ElementsMatch(t, []string{"child2"}, unblocked)
}

func TestDepGraphCheckCycleDetectsDirectCycle(t *testing.T) {
	g := newDepGraph()
	isCompleted := func(string) bool { return false }

	// "a" depends on "b"
	g.register("a", []string{"b"}, isCompleted)

	// publishing "b" with a declared dependency on "a" would cycle
	err := g.checkCycle("b", []string{"a"})
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestDepGraphCheckCycleAllowsDiamond(t *testing.T) {
	g := newDepGraph()
	isCompleted := func(string) bool { return false }

	g.register("b", []string{"a"}, isCompleted)
	g.register("c", []string{"a"}, isCompleted)

	// "d" depends on both b and c, no cycle
	err := g.checkCycle("d", []string{"b", "c"})
	assert.NoError(t, err)
}

func TestDepGraphForgetDropsBookkeeping(t *testing.T) {
	g := newDepGraph()
	isCompleted := func(string) bool { return false }

	g.register("solo", []string{"x"}, isCompleted)
	g.forget("solo")

	_, stillPending := g.pendingRemaining["solo"]
	assert.False(t, stillPending)
}
