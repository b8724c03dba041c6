package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/docforest/docforest/internal/forest"
	"github.com/docforest/docforest/internal/models"
)

// ArchiveService assembles and restores self-contained export bundles: the
// full forest plus every payload referenced by a leaf.
type ArchiveService struct {
	forest *forest.Forest
	blobs  *BlobService
	tree   *TreeService
}

// NewArchiveService creates an archive service.
func NewArchiveService(f *forest.Forest, blobs *BlobService, tree *TreeService) *ArchiveService {
	return &ArchiveService{forest: f, blobs: blobs, tree: tree}
}

// ExportAll walks the forest, fetches every leaf's payload and derived
// artifact, and returns the portable archive. It does not mutate state.
func (s *ArchiveService) ExportAll(ctx context.Context) (*models.Archive, error) {
	roots := s.forest.Snapshot()
	archive := &models.Archive{
		Version:   SnapshotVersion,
		Timestamp: time.Now(),
		Forest:    roots,
		Blobs:     make(map[string]string),
	}
	forest.WalkNodes(roots, func(n *models.Node) bool {
		if n.Kind != models.KindLeaf {
			return true
		}
		for _, key := range []models.BlobKey{models.PayloadKey(n.ID), models.DerivedKey(n.ID)} {
			data, err := s.blobs.Get(ctx, key)
			if err != nil || data == nil {
				continue
			}
			archive.Blobs[key.String()] = base64.StdEncoding.EncodeToString(data)
		}
		return true
	})
	return archive, nil
}

// archiveDoc is the lenient wire form of an archive. Older exports used
// "topics" for the forest and "pdfs" for the blob map.
type archiveDoc struct {
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Forest    json.RawMessage   `json:"forest"`
	Topics    json.RawMessage   `json:"topics"`
	Blobs     map[string]string `json:"blobs"`
	Pdfs      map[string]string `json:"pdfs"`
}

// ImportAll restores an archive: the forest is replaced wholesale and
// persisted, then every blob is written under its normalized key.
//
// Format validation happens before any mutation. Blob writes are not
// rolled back on failure: by then the forest replacement is committed, so a
// failed write can leave leaves referencing absent payloads. Accepted
// limitation; failures are logged.
func (s *ArchiveService) ImportAll(ctx context.Context, raw []byte) error {
	var doc archiveDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.InvalidFormat("archive is not valid JSON").Wrap(err)
	}
	forestRaw := doc.Forest
	if isJSONNull(forestRaw) {
		forestRaw = doc.Topics
	}
	if isJSONNull(forestRaw) {
		return models.InvalidFormat("archive has no forest")
	}
	var roots []*models.Node
	if err := json.Unmarshal(forestRaw, &roots); err != nil {
		return models.InvalidFormat("archive forest is not a node list").Wrap(err)
	}

	// Last import wins entirely: no merge with the existing forest.
	if err := s.forest.ReplaceAll(roots); err != nil {
		return err
	}
	if err := s.tree.SaveForest(ctx, s.forest.Snapshot()); err != nil {
		return err
	}

	blobs := doc.Blobs
	if blobs == nil {
		blobs = doc.Pdfs
	}
	for rawKey, value := range blobs {
		key, err := models.ParseBlobKey(rawKey)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unrecognized blob key in archive", "key", rawKey, "err", err)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			// Older exports stored raw strings rather than base64.
			data = []byte(value)
		}
		if err := s.blobs.Put(ctx, key, data); err != nil {
			slog.WarnContext(ctx, "Failed to restore blob from archive", "key", key.String(), "err", err)
		}
	}
	return nil
}

// isJSONNull reports whether a raw field is absent or the JSON null literal.
// A `"forest": null` field carries no nodes and must not be mistaken for an
// empty forest, which would wipe the current one.
func isJSONNull(raw json.RawMessage) bool {
	return raw == nil || string(bytes.TrimSpace(raw)) == "null"
}

// Schema returns the JSON Schema describing the archive format.
func (s *ArchiveService) Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(&models.Archive{})
}
