package disruptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletedSetAddAndHas(t *testing.T) {
	c := newCompletedSet(10)
	assert.False(t, c.Has("a"))

	c.Add("a")
	assert.True(t, c.Has("a"))
}

func TestCompletedSetMissingFiltersToIncomplete(t *testing.T) {
	c := newCompletedSet(10)
	c.Add("a")
	c.Add("b")

	missing := c.Missing([]string{"a", "b", "c", "d"})
	assert.ElementsMatch(t, []string{"c", "d"}, missing)
}

// TestCompletedSetEvictsOldestOverCapacity exercises the bounded LRU from
// spec §3 "Event" ("Completed set" is "LRU by insertion, capped at
// maxDependencies").
func TestCompletedSetEvictsOldestOverCapacity(t *testing.T) {
	c := newCompletedSet(2)

	c.Add("a")
	c.Add("b")
	c.Add("c") // evicts "a"

	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestCompletedSetAddIsIdempotent(t *testing.T) {
	c := newCompletedSet(2)
	c.Add("a")
	c.Add("a")
	c.Add("b")

	// re-adding "a" must not push it back to the front of the LRU or grow
	// the set beyond capacity.
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}
