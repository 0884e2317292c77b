package shardrouter

import (
	"fmt"
	"strconv"

	"github.com/golang/groupcache/consistenthash"
)

// consistentStrategy wraps groupcache's consistenthash.Map, keyed by shard
// id: a sorted ring of virtualNodes-per-shard positions. Positions use
// groupcache's default hash, CRC32 of the replica index followed by the
// decimal shard id; a key goes to the first position at or after its own
// CRC32, wrapping around. Ring positions are not MD5-derived, and
// StrategyConfig.Function is not consulted by this strategy.
type consistentStrategy struct {
	ring      *consistenthash.Map
	numShards int
	replicas  int
}

func newConsistentStrategy(virtualNodes, numShards int) (*consistentStrategy, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("shardrouter: consistent-hash strategy requires numShards > 0")
	}
	if virtualNodes <= 0 {
		virtualNodes = 100
	}
	ring := consistenthash.New(virtualNodes, nil)
	keys := make([]string, numShards)
	for i := 0; i < numShards; i++ {
		keys[i] = strconv.Itoa(i)
	}
	ring.Add(keys...)
	return &consistentStrategy{ring: ring, numShards: numShards, replicas: virtualNodes}, nil
}

func (c *consistentStrategy) ShardFor(key string) (int, error) {
	owner := c.ring.Get(key)
	if owner == "" {
		return 0, fmt.Errorf("shardrouter: consistent-hash ring is empty")
	}
	shardID, err := strconv.Atoi(owner)
	if err != nil {
		return 0, fmt.Errorf("shardrouter: malformed ring entry %q: %w", owner, err)
	}
	return shardID, nil
}

// Rebuild replaces the ring with one built from liveShardIDs only, so a
// shard left out of the list (e.g. it went Offline) owns no positions. For
// the minimal-reassignment property (spec P9): only keys owned by the
// removed shard's virtual nodes move.
func (c *consistentStrategy) Rebuild(liveShardIDs []int) {
	ring := consistenthash.New(c.replicas, nil)
	keys := make([]string, len(liveShardIDs))
	for i, id := range liveShardIDs {
		keys[i] = strconv.Itoa(id)
	}
	ring.Add(keys...)
	c.ring = ring
}
