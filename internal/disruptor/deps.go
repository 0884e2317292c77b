package disruptor

import (
	"errors"
	"sync"
)

// ErrDependencyCycle is returned when publishing an event whose declared
// dependencies would create a cycle against currently pending/in-flight
// events (spec §7, §9).
var ErrDependencyCycle = errors.New("disruptor: dependency cycle detected")

// depGraph tracks, for every event not yet Completed, its declared
// dependency set, plus an adjacency list of waiters per dependency id so
// completion can unblock dependents in O(1) instead of rescanning every
// pending event (spec §9).
type depGraph struct {
	// declared[id] = the full set of dependency ids an event was published
	// with, kept until the event completes (needed for cycle detection).
	declared map[string][]string

	// waiters[depID] = ids of events still waiting on depID.
	waiters map[string][]string

	// pendingRemaining[id] = dependency ids of id not yet completed.
	pendingRemaining map[string]map[string]struct{}

	lock sync.Mutex
}

func newDepGraph() *depGraph {
	return &depGraph{
		declared:         make(map[string][]string),
		waiters:          make(map[string][]string),
		pendingRemaining: make(map[string]map[string]struct{}),
	}
}

// checkCycle returns ErrDependencyCycle if adding an event `id` with
// dependencies `deps` would create a cycle, by walking the declared
// dependency graph of still-incomplete events looking for a path back to
// id.
func (g *depGraph) checkCycle(id string, deps []string) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	visited := make(map[string]bool)
	var stack []string
	stack = append(stack, deps...)

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		if cur == id {
			return ErrDependencyCycle
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		for _, next := range g.declared[cur] {
			stack = append(stack, next)
		}
	}
	return nil
}

// register records id's dependency set and returns the subset still
// incomplete (the caller passes in the completed-set membership test).
func (g *depGraph) register(id string, deps []string, isCompleted func(string) bool) []string {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.declared[id] = deps

	remaining := make(map[string]struct{})
	for _, d := range deps {
		if isCompleted(d) {
			continue
		}
		remaining[d] = struct{}{}
		g.waiters[d] = append(g.waiters[d], id)
	}
	if len(remaining) > 0 {
		g.pendingRemaining[id] = remaining
	}

	missing := make([]string, 0, len(remaining))
	for d := range remaining {
		missing = append(missing, d)
	}
	return missing
}

// complete marks depID as completed, removing it from every waiter's
// remaining set, and returns the ids of waiters now fully unblocked.
func (g *depGraph) complete(depID string) []string {
	g.lock.Lock()
	defer g.lock.Unlock()

	delete(g.declared, depID)

	waiters := g.waiters[depID]
	delete(g.waiters, depID)

	var unblocked []string
	for _, w := range waiters {
		rem, ok := g.pendingRemaining[w]
		if !ok {
			continue
		}
		delete(rem, depID)
		if len(rem) == 0 {
			delete(g.pendingRemaining, w)
			unblocked = append(unblocked, w)
		}
	}
	return unblocked
}

// forget drops bookkeeping for an event that completed without ever having
// been parked (no pending dependencies).
func (g *depGraph) forget(id string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.declared, id)
	delete(g.pendingRemaining, id)
}
