// Package storage layers the document-organizer services over the tiered
// key/value store: blob payloads, whole-forest snapshots, archive
// export/import, and server configuration.
package storage

import (
	"context"

	"github.com/docforest/docforest/internal/kvstore"
	"github.com/docforest/docforest/internal/models"
)

// BlobService stores per-node binary payloads under typed keys.
//
// Storage failures never surface here: the underlying store absorbs them
// into its in-memory mirror. Only key validation can fail.
type BlobService struct {
	store *kvstore.Store
}

// NewBlobService creates a blob service over the given store.
func NewBlobService(store *kvstore.Store) *BlobService {
	return &BlobService{store: store}
}

// Put stores data under the typed key, recording size and timestamp.
func (s *BlobService) Put(ctx context.Context, key models.BlobKey, data []byte) error {
	if err := key.Validate(); err != nil {
		return models.BadRequest(err.Error())
	}
	s.store.Put(ctx, key.String(), data)
	return nil
}

// Get returns the stored bytes, or nil when no blob exists for the key.
func (s *BlobService) Get(ctx context.Context, key models.BlobKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, models.BadRequest(err.Error())
	}
	e := s.store.Get(ctx, key.String())
	if e == nil {
		return nil, nil
	}
	return e.Data, nil
}

// Entry returns the stored entry with its metadata, or nil when absent.
func (s *BlobService) Entry(ctx context.Context, key models.BlobKey) (*kvstore.Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, models.BadRequest(err.Error())
	}
	return s.store.Get(ctx, key.String()), nil
}

// Usage reports the selected tier and per-entry sizes for diagnostics.
type Usage struct {
	Tier       string             `json:"tier"`
	TotalBytes int64              `json:"total_bytes"`
	Entries    []kvstore.EntryInfo `json:"entries,omitempty"`
}

// Usage returns a storage usage report across all stored entries.
func (s *BlobService) Usage(ctx context.Context) (*Usage, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, models.InternalWithError("failed to list storage entries", err)
	}
	u := &Usage{Tier: s.store.Tier(), Entries: infos}
	for _, info := range infos {
		u.TotalBytes += info.Size
	}
	return u, nil
}
