// Package shardrouter implements the Shard Router (spec §4.4, C3): maps a
// routing key to a shard by a pluggable strategy, and exposes per-shard and
// fan-out query/transaction operations over pluggable backends.
package shardrouter

import "time"

// Status is a shard's last-observed health.
type Status int

const (
	StatusInitialized Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Descriptor is the per-shard bookkeeping record (spec §3 "Shard
// descriptor").
type Descriptor struct {
	ShardID     int
	Endpoint    string
	Pool        Pool
	Status      Status
	LastCheck   time.Time
	LastLatency time.Duration
	LastError   error
}
