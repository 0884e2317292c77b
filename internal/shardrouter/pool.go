package shardrouter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/l2labs/rollup-sequencer/internal/config"
)

// NewPool constructs the Pool backend named by sc.Backend, pointed at
// sc.Endpoint. postgres/spanner treat Endpoint as a DSN/database path;
// redis treats it as a host:port address with no password and DB 0 — a
// dedicated credentials channel is outside this router's config surface.
func NewPool(ctx context.Context, sc config.ShardConfig) (Pool, error) {
	switch sc.Backend {
	case "", "postgres":
		return NewPostgresPool(sc.Endpoint)
	case "redis":
		return NewRedisPool(sc.Endpoint, "", 0), nil
	case "spanner":
		return NewSpannerPool(ctx, sc.Endpoint)
	default:
		return nil, fmt.Errorf("shardrouter: unknown shard backend %q", sc.Backend)
	}
}

// Pool is the minimal per-shard backend contract the router drives. Each
// configured shard backend (postgres, redis, spanner) implements it.
type Pool interface {
	// Query runs a read against this shard, returning backend-native rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// Exec runs a write/transaction body against this shard.
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
	// Ping verifies the shard is reachable, for checkShardStatus.
	Ping(ctx context.Context) error
	Close() error
}

// Rows abstracts the narrow row-scanning surface query results need,
// satisfied by *sql.Rows and small wrappers for the other backends.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// PostgresPool implements Pool against database/sql + lib/pq.
type PostgresPool struct {
	db *sql.DB
}

// NewPostgresPool opens (lazily connects) a postgres shard pool.
func NewPostgresPool(dsn string) (*PostgresPool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("shardrouter: open postgres pool: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresPool{db: db}, nil
}

func (p *PostgresPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

func (p *PostgresPool) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shardrouter: begin postgres tx: %w", err)
	}
	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresPool) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresPool) Close() error                   { return p.db.Close() }

// RedisPool implements Pool against redis/go-redis/v9. Redis has no
// transaction semantics comparable to SQL: Exec calls fn directly, with no
// WATCH/MULTI boundary around it; callers issue redis commands through
// Client().
type RedisPool struct {
	rdb *redis.Client
}

func NewRedisPool(addr, password string, db int) *RedisPool {
	return &RedisPool{rdb: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})}
}

// Client exposes the underlying redis client for callers that need
// redis-specific commands beyond the narrow Pool interface.
func (p *RedisPool) Client() *redis.Client { return p.rdb }

func (p *RedisPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, fmt.Errorf("shardrouter: redis pool does not support generic Query, use Client()")
}

func (p *RedisPool) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (p *RedisPool) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }
func (p *RedisPool) Close() error                   { return p.rdb.Close() }

// SpannerPool implements Pool against cloud.google.com/go/spanner.
type SpannerPool struct {
	client *spanner.Client
}

func NewSpannerPool(ctx context.Context, dbPath string) (*SpannerPool, error) {
	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("shardrouter: open spanner client: %w", err)
	}
	return &SpannerPool{client: client}, nil
}

// Client exposes the underlying spanner client for statement-shaped reads.
func (p *SpannerPool) Client() *spanner.Client { return p.client }

func (p *SpannerPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, fmt.Errorf("shardrouter: spanner pool does not support generic Query, use Client()")
}

func (p *SpannerPool) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := p.client.ReadWriteTransaction(ctx, func(ctx context.Context, _ *spanner.ReadWriteTransaction) error {
		return fn(ctx)
	})
	return err
}

func (p *SpannerPool) Ping(ctx context.Context) error {
	roTx := p.client.Single()
	defer roTx.Close()
	iter := roTx.Query(ctx, spanner.Statement{SQL: "SELECT 1"})
	defer iter.Stop()
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (p *SpannerPool) Close() error {
	p.client.Close()
	return nil
}
