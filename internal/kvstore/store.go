package kvstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Store wraps the selected backend with the fallback-on-error strategy.
//
// The backend is chosen once by [Open] and never re-probed. Any Get or Put
// error against it is logged and absorbed: a failed Put lands in the
// in-memory mirror so the value survives for the rest of the session, and a
// failed Get consults the mirror, which only holds values that were mirrored
// at write time. Callers never see storage errors; this is a deliberate
// availability-over-durability tradeoff.
type Store struct {
	backend Backend
	mirror  *MemBackend
}

// Open probes the tiers in preference order and returns a Store on the first
// backend that comes up: SQLite, then file-per-key, then in-memory.
//
// Open never fails; the in-memory tier is always available.
func Open(dataDir string) *Store {
	if b, err := NewSQLiteBackend(dataDir); err == nil {
		slog.Info("Storage tier selected", "tier", b.Name(), "path", b.Path())
		return NewStore(b)
	} else {
		slog.Warn("SQLite tier unavailable", "err", err)
	}
	if b, err := NewFileBackend(dataDir); err == nil {
		slog.Info("Storage tier selected", "tier", b.Name())
		return NewStore(b)
	} else {
		slog.Warn("File tier unavailable", "err", err)
	}
	slog.Warn("No durable storage available, data will not survive a restart")
	return NewStore(NewMemBackend())
}

// OpenPreferred is like Open but starts probing at the named tier.
// Unknown or empty names fall back to the full probe order.
func OpenPreferred(dataDir, tier string) *Store {
	switch tier {
	case "file":
		if b, err := NewFileBackend(dataDir); err == nil {
			slog.Info("Storage tier selected", "tier", b.Name())
			return NewStore(b)
		} else {
			slog.Warn("File tier unavailable", "err", err)
		}
		return NewStore(NewMemBackend())
	case "memory":
		return NewStore(NewMemBackend())
	default:
		return Open(dataDir)
	}
}

// NewStore wraps an already-constructed backend. Used by Open and by tests
// that inject a failing backend double.
func NewStore(b Backend) *Store {
	return &Store{backend: b, mirror: NewMemBackend()}
}

// Tier returns the selected backend name, for diagnostics only.
func (s *Store) Tier() string {
	return s.backend.Name()
}

// Get returns the entry for key, or nil when absent.
//
// On a backend failure the in-memory mirror is consulted; a value written
// successfully to the durable tier is not mirrored, so it reads as absent
// while the backend is failing.
func (s *Store) Get(ctx context.Context, key string) *Entry {
	e, err := s.backend.Get(ctx, key)
	if err == nil {
		return e
	}
	slog.WarnContext(ctx, "Storage read failed, consulting in-memory mirror",
		"tier", s.backend.Name(), "key", key, "err", err)
	e, _ = s.mirror.Get(ctx, key)
	return e
}

// Put stores value under key.
//
// On a backend failure the value is written to the in-memory mirror instead,
// so it remains readable for the current session but is lost on restart.
func (s *Store) Put(ctx context.Context, key string, value []byte) {
	if err := s.backend.Put(ctx, key, value); err != nil {
		slog.WarnContext(ctx, "Storage write failed, falling back to in-memory mirror",
			"tier", s.backend.Name(), "key", key, "size", len(value), "err", err)
		_ = s.mirror.Put(ctx, key, value)
	}
}

// List reports metadata for all stored entries, merging mirrored entries in.
func (s *Store) List(ctx context.Context) ([]EntryInfo, error) {
	infos, err := s.backend.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Storage list failed, reporting in-memory mirror only",
			"tier", s.backend.Name(), "err", err)
		return s.mirror.List(ctx)
	}
	mirrored, _ := s.mirror.List(ctx)
	if len(mirrored) == 0 {
		return infos, nil
	}
	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.Key] = true
	}
	for _, info := range mirrored {
		if !seen[info.Key] {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Close releases the selected backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", s.backend.Name(), err)
	}
	return nil
}
