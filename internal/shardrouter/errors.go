package shardrouter

import "errors"

// ErrShardUnavailable is returned for an unknown/unattached shard, or
// wraps an underlying pool error (spec §7).
var ErrShardUnavailable = errors.New("shardrouter: shard unavailable")
