// Package kvstore provides tiered key/value storage for blobs and snapshots.
//
// Three backends are supported: a SQLite database (preferred, handles large
// binary values efficiently), a file-per-key directory store, and an
// in-process map. One backend is selected by probing at startup and stays
// selected for the process lifetime; per-operation failures against the
// selected backend fall back to an in-memory mirror so the current session
// never loses a write, at the cost of durability.
package kvstore

import (
	"context"
	"time"
)

// Entry is a stored value plus the metadata recorded at write time.
type Entry struct {
	Key       string
	Data      []byte
	Timestamp time.Time
	Size      int64
}

// EntryInfo describes a stored entry without its data, for usage reporting.
type EntryInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Backend is a single storage tier.
//
// Get returns (nil, nil) when the key is absent. Put overwrites and records
// the value size and a write timestamp alongside the data.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]EntryInfo, error)
	Name() string
	Close() error
}
