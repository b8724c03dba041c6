package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/docforest/docforest/internal/kvstore"
	"github.com/docforest/docforest/internal/models"
)

const (
	// snapshotKey is the fixed key the whole forest is persisted under.
	snapshotKey = "forest_snapshot"

	// SnapshotVersion is the current snapshot and archive schema version.
	SnapshotVersion = "2"
)

// snapshotEnvelope is the persisted form of the forest.
type snapshotEnvelope struct {
	ID        string         `json:"id"`
	Data      []*models.Node `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
}

// TreeService persists the entire forest as one versioned snapshot.
//
// Every mutation rewrites the full snapshot; persistence cost is bounded by
// total tree size, which stays small for this kind of data.
type TreeService struct {
	store *kvstore.Store
}

// NewTreeService creates a tree service over the given store.
func NewTreeService(store *kvstore.Store) *TreeService {
	return &TreeService{store: store}
}

// SaveForest writes the full forest snapshot under the fixed key.
func (s *TreeService) SaveForest(ctx context.Context, roots []*models.Node) error {
	env := snapshotEnvelope{
		ID:        snapshotKey,
		Data:      roots,
		Timestamp: time.Now(),
		Version:   SnapshotVersion,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return models.InternalWithError("failed to encode forest snapshot", err)
	}
	s.store.Put(ctx, snapshotKey, data)
	return nil
}

// LoadForest reads the persisted snapshot.
//
// Returns (nil, nil) when no snapshot exists or the stored bytes fail to
// decode; the caller supplies the defaults. A decode failure is logged but
// treated the same as a missing snapshot.
func (s *TreeService) LoadForest(ctx context.Context) ([]*models.Node, error) {
	e := s.store.Get(ctx, snapshotKey)
	if e == nil {
		return nil, nil
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(e.Data, &env); err != nil {
		slog.WarnContext(ctx, "Persisted snapshot is unreadable, starting from defaults", "err", err)
		return nil, nil
	}
	return env.Data, nil
}
