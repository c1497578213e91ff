package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map, nothing survives a restart
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//   - "badger": Badger LSM directory
//
// An empty Driver selects "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API used by the subscription registry.
//
// Values handed to Scan callbacks are copies and may be retained.
// Scan visits keys in ascending byte order.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string, fn func(key string, val []byte) error) error
	Close() error
}

// Maintainer is implemented by backends that benefit from periodic
// housekeeping (journal compaction, value log GC, planner stats).
type Maintainer interface {
	Maintain(ctx context.Context) error
}

type kv struct {
	key string
	val []byte
}
