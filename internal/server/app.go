// Package server exposes the organizer core over a JSON HTTP API.
//
// The API is plumbing: the browser UI consumes the tree and blob operations
// through it, and every mutating handler persists the full forest snapshot
// after the in-memory mutation, per the call-site persistence rule.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/docforest/docforest/internal/forest"
	"github.com/docforest/docforest/internal/kvstore"
	"github.com/docforest/docforest/internal/storage"
)

// App owns the process-wide state: the forest, the selected storage backend,
// and the services over it. It is passed explicitly into every handler
// constructor; there are no package-level globals.
type App struct {
	Config  *storage.Config
	Forest  *forest.Forest
	Store   *kvstore.Store
	Blobs   *storage.BlobService
	Tree    *storage.TreeService
	Archive *storage.ArchiveService

	mu        sync.Mutex
	lastSaved time.Time
}

// NewApp probes storage, loads the persisted forest (or the built-in
// defaults on first run), and wires the services.
func NewApp(ctx context.Context, dataDir string, cfg *storage.Config) (*App, error) {
	store := kvstore.OpenPreferred(dataDir, cfg.StorageTier)
	tree := storage.NewTreeService(store)
	blobs := storage.NewBlobService(store)

	roots, err := tree.LoadForest(ctx)
	if err != nil {
		return nil, err
	}
	firstRun := roots == nil
	if firstRun {
		roots = forest.Default()
	}
	f := forest.New(roots)

	app := &App{
		Config:  cfg,
		Forest:  f,
		Store:   store,
		Blobs:   blobs,
		Tree:    tree,
		Archive: storage.NewArchiveService(f, blobs, tree),
	}
	if firstRun {
		if err := app.Persist(ctx); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Persist writes the full forest snapshot. Called after every mutation.
func (a *App) Persist(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Tree.SaveForest(ctx, a.Forest.Snapshot()); err != nil {
		return err
	}
	a.lastSaved = time.Now()
	return nil
}

// LastSaved returns the time of the most recent snapshot write from this
// process. Used to tell our own disk writes apart from external ones.
func (a *App) LastSaved() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSaved
}

// Reload replaces the in-memory forest with the persisted snapshot, if one
// exists. Used when the snapshot was rewritten outside this process.
func (a *App) Reload(ctx context.Context) error {
	roots, err := a.Tree.LoadForest(ctx)
	if err != nil || roots == nil {
		return err
	}
	return a.Forest.ReplaceAll(roots)
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.Store.Close()
}
