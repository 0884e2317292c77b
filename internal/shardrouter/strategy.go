package shardrouter

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash/crc32"

	"github.com/l2labs/rollup-sequencer/internal/config"
)

// Strategy maps a routing key to a shard id in [0, numShards).
type Strategy interface {
	ShardFor(key string) (int, error)
}

// NewStrategy builds the configured Strategy (spec §4.4, §6.5).
func NewStrategy(cfg config.StrategyConfig, numShards int) (Strategy, error) {
	switch cfg.Type {
	case "", "hash":
		return newHashStrategy(cfg.Function, numShards)
	case "range":
		return newRangeStrategy(cfg.Ranges, numShards)
	case "lookup":
		fallback, err := newHashStrategy(cfg.Function, numShards)
		if err != nil {
			return nil, err
		}
		return newLookupStrategy(cfg.LookupTable, fallback)
	case "consistent-hash":
		return newConsistentStrategy(cfg.VirtualNodes, numShards)
	default:
		return nil, fmt.Errorf("shardrouter: unknown strategy type %q", cfg.Type)
	}
}

// hashStrategy is pure and stable: key -> hash(function) -> mod numShards
// (spec P10).
type hashStrategy struct {
	fn        func(string) uint32
	numShards int
}

func newHashStrategy(function string, numShards int) (*hashStrategy, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("shardrouter: hash strategy requires numShards > 0")
	}
	var fn func(string) uint32
	switch function {
	case "", "md5":
		fn = func(key string) uint32 {
			sum := md5.Sum([]byte(key))
			return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
		}
	case "sha1":
		fn = func(key string) uint32 {
			sum := sha1.Sum([]byte(key))
			return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
		}
	case "crc32":
		fn = crc32.ChecksumIEEE
	default:
		return nil, fmt.Errorf("shardrouter: unknown hash function %q", function)
	}
	return &hashStrategy{fn: fn, numShards: numShards}, nil
}

func (h *hashStrategy) ShardFor(key string) (int, error) {
	return int(h.fn(key) % uint32(h.numShards)), nil
}

// rangeStrategy assigns a numeric key to the shard whose [min, max) range
// contains it, falling through to numeric(key) mod numShards when no
// configured range contains it (spec §4.4 "Range").
type rangeStrategy struct {
	ranges    []config.RangeConfig
	numShards int
}

func newRangeStrategy(ranges []config.RangeConfig, numShards int) (*rangeStrategy, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("shardrouter: range strategy requires at least one range")
	}
	if numShards <= 0 {
		return nil, fmt.Errorf("shardrouter: range strategy requires numShards > 0")
	}
	return &rangeStrategy{ranges: ranges, numShards: numShards}, nil
}

func (r *rangeStrategy) ShardFor(key string) (int, error) {
	var n uint64
	if _, err := fmt.Sscanf(key, "%d", &n); err != nil {
		return 0, fmt.Errorf("shardrouter: range strategy requires a numeric key: %w", err)
	}
	for _, rg := range r.ranges {
		if n >= rg.Min && n < rg.Max {
			return rg.ShardID, nil
		}
	}
	return int(n % uint64(r.numShards)), nil
}

// lookupStrategy assigns a key via a static table, falling through to the
// hash strategy on a table miss (spec §4.4 "Lookup").
type lookupStrategy struct {
	table    map[string]int
	fallback Strategy
}

func newLookupStrategy(table map[string]int, fallback Strategy) (*lookupStrategy, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("shardrouter: lookup strategy requires a non-empty table")
	}
	return &lookupStrategy{table: table, fallback: fallback}, nil
}

func (l *lookupStrategy) ShardFor(key string) (int, error) {
	if shardID, ok := l.table[key]; ok {
		return shardID, nil
	}
	return l.fallback.ShardFor(key)
}
