package shardrouter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/l2labs/rollup-sequencer/internal/config"
)

// Router fans queries and transactions out across a fixed set of shard
// backends, chosen by a pluggable Strategy (spec §4.4).
type Router struct {
	cfg      config.ShardRouterConfig
	strategy Strategy
	log      *slog.Logger

	mu     sync.RWMutex
	shards map[int]*Descriptor
}

// NewRouter builds shard descriptors from cfg (without connecting pools;
// callers attach pools via RegisterPool before querying) and the configured
// routing strategy.
func NewRouter(cfg config.ShardRouterConfig, log *slog.Logger) (*Router, error) {
	if log == nil {
		log = slog.Default()
	}
	strategy, err := NewStrategy(cfg.Strategy, len(cfg.Shards))
	if err != nil {
		return nil, err
	}

	shards := make(map[int]*Descriptor, len(cfg.Shards))
	for _, sc := range cfg.Shards {
		shards[sc.ShardID] = &Descriptor{ShardID: sc.ShardID, Endpoint: sc.Endpoint, Status: StatusInitialized}
	}

	return &Router{cfg: cfg, strategy: strategy, log: log.With("component", "shard_router"), shards: shards}, nil
}

// RegisterPool attaches a live backend Pool to a shard id.
func (r *Router) RegisterPool(shardID int, pool Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.shards[shardID]
	if !ok {
		return fmt.Errorf("shardrouter: unknown shard id %d", shardID)
	}
	d.Pool = pool
	return nil
}

func (r *Router) descriptor(shardID int) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.shards[shardID]
	if !ok {
		return nil, fmt.Errorf("shardrouter: unknown shard id %d: %w", shardID, ErrShardUnavailable)
	}
	return d, nil
}

// QueryOnShard runs query against exactly one shard.
func (r *Router) QueryOnShard(ctx context.Context, shardID int, query string, args ...any) (Rows, error) {
	d, err := r.descriptor(shardID)
	if err != nil {
		return nil, err
	}
	if d.Pool == nil {
		return nil, fmt.Errorf("shardrouter: shard %d has no pool: %w", shardID, ErrShardUnavailable)
	}
	return d.Pool.Query(ctx, query, args...)
}

// QueryByKey resolves key to a shard via the configured strategy and runs
// the query there.
func (r *Router) QueryByKey(ctx context.Context, key, query string, args ...any) (Rows, error) {
	shardID, err := r.strategy.ShardFor(key)
	if err != nil {
		return nil, err
	}
	return r.QueryOnShard(ctx, shardID, query, args...)
}

// ShardResult is one shard's outcome in a fan-out call.
type ShardResult struct {
	ShardID int
	Rows    Rows
	Err     error
}

// QueryAllShards fans the same query out to every shard sequentially by
// shard id; a per-shard failure is captured in its ShardResult rather than
// aborting the whole fan-out (spec §7 ShardUnavailable semantics).
func (r *Router) QueryAllShards(ctx context.Context, query string, args ...any) []ShardResult {
	r.mu.RLock()
	ids := make([]int, 0, len(r.shards))
	for id := range r.shards {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Ints(ids)

	results := make([]ShardResult, 0, len(ids))
	for _, id := range ids {
		rows, err := r.QueryOnShard(ctx, id, query, args...)
		results = append(results, ShardResult{ShardID: id, Rows: rows, Err: err})
	}
	return results
}

// TransactionOnShard runs fn as a transaction against exactly one shard.
func (r *Router) TransactionOnShard(ctx context.Context, shardID int, fn func(ctx context.Context) error) error {
	d, err := r.descriptor(shardID)
	if err != nil {
		return err
	}
	if d.Pool == nil {
		return fmt.Errorf("shardrouter: shard %d has no pool: %w", shardID, ErrShardUnavailable)
	}
	return d.Pool.Exec(ctx, fn)
}

// TransactionByKey resolves key to a shard and runs fn there.
func (r *Router) TransactionByKey(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	shardID, err := r.strategy.ShardFor(key)
	if err != nil {
		return err
	}
	return r.TransactionOnShard(ctx, shardID, fn)
}

// MigrateAllShards runs fn against every shard sequentially, stopping and
// returning the first error (unlike QueryAllShards, a migration is not
// partial-tolerant).
func (r *Router) MigrateAllShards(ctx context.Context, fn func(ctx context.Context, shardID int) error) error {
	r.mu.RLock()
	ids := make([]int, 0, len(r.shards))
	for id := range r.shards {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)

	for _, id := range ids {
		if err := fn(ctx, id); err != nil {
			return fmt.Errorf("shardrouter: migration failed on shard %d: %w", id, err)
		}
	}
	return nil
}

// CheckShardStatus pings a shard and updates its descriptor.
func (r *Router) CheckShardStatus(ctx context.Context, shardID int) (Status, error) {
	d, err := r.descriptor(shardID)
	if err != nil {
		return StatusOffline, err
	}
	if d.Pool == nil {
		return StatusOffline, fmt.Errorf("shardrouter: shard %d has no pool: %w", shardID, ErrShardUnavailable)
	}

	start := time.Now()
	pingErr := d.Pool.Ping(ctx)
	latency := time.Since(start)

	r.mu.Lock()
	d.LastCheck = time.Now()
	d.LastLatency = latency
	d.LastError = pingErr
	if pingErr != nil {
		d.Status = StatusOffline
	} else {
		d.Status = StatusOnline
	}
	status := d.Status
	r.mu.Unlock()

	return status, pingErr
}

// ShardStats is the introspection view for getShardStats.
type ShardStats struct {
	ShardID     int
	Status      Status
	LastCheck   time.Time
	LastLatency time.Duration
	LastError   string
}

// GetShardStats returns a snapshot of every shard's descriptor.
func (r *Router) GetShardStats() []ShardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]ShardStats, 0, len(r.shards))
	for _, d := range r.shards {
		errStr := ""
		if d.LastError != nil {
			errStr = d.LastError.Error()
		}
		stats = append(stats, ShardStats{
			ShardID:     d.ShardID,
			Status:      d.Status,
			LastCheck:   d.LastCheck,
			LastLatency: d.LastLatency,
			LastError:   errStr,
		})
	}
	return stats
}

// RunHealthProbe periodically checks every shard's status until ctx is
// done, supplementing the on-demand CheckShardStatus call (spec's
// checkShardStatus is on-demand only; this background loop is an addition
// to keep descriptors fresh without a caller needing to poll).
func (r *Router) RunHealthProbe(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			ids := make([]int, 0, len(r.shards))
			for id := range r.shards {
				ids = append(ids, id)
			}
			r.mu.RUnlock()
			for _, id := range ids {
				if _, err := r.CheckShardStatus(ctx, id); err != nil {
					r.log.Warn("shard health probe failed", "shard", id, "error", err)
				}
			}
		}
	}
}

// Close shuts down every shard's pool.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, d := range r.shards {
		if d.Pool == nil {
			continue
		}
		if err := d.Pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
