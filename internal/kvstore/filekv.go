package kvstore

import (
	"context"
	"encoding/base32"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// base32Enc uses the base32 "Extended Hex" alphabet (0-9A-V) which is
// ASCII-sorted and safe on case-insensitive filesystems.
var base32Enc = base32.HexEncoding.WithPadding(base32.NoPadding)

const kvDirName = "kv"

// FileBackend is the simple durable storage tier: one file per key.
//
// Filenames are the base32 encoding of the key; writes go through a temp
// file and a rename so a crash never leaves a half-written value. Size and
// timestamp come from the file metadata.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the store directory and verifies it is writable.
func NewFileBackend(dir string) (*FileBackend, error) {
	root := filepath.Join(dir, kvDirName)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create kv directory: %w", err)
	}
	// Probe writability once so tier selection can reject read-only media.
	f, err := os.CreateTemp(root, "probe-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("kv directory is not writable: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("kv directory probe failed: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("kv directory probe cleanup failed: %w", err)
	}
	return &FileBackend{dir: root}, nil
}

func (f *FileBackend) pathForKey(key string) string {
	return filepath.Join(f.dir, base32Enc.EncodeToString([]byte(key)))
}

// Get reads the value and its file metadata, or returns (nil, nil) when absent.
func (f *FileBackend) Get(_ context.Context, key string) (*Entry, error) {
	path := f.pathForKey(key)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from an encoded key, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entry %q: %w", key, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat entry %q: %w", key, err)
	}
	return &Entry{
		Key:       key,
		Data:      data,
		Timestamp: info.ModTime(),
		Size:      int64(len(data)),
	}, nil
}

// Put writes the value atomically via temp file + rename.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write entry %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.pathForKey(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize entry %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry file. Deleting an absent key is not an error.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.pathForKey(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete entry %q: %w", key, err)
	}
	return nil
}

// List decodes every filename back to its key and reports file metadata.
// Stray temp files and undecodable names are skipped.
func (f *FileBackend) List(_ context.Context) ([]EntryInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read kv directory: %w", err)
	}
	infos := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		key, err := base32Enc.DecodeString(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, EntryInfo{
			Key:       string(key),
			Size:      info.Size(),
			Timestamp: info.ModTime(),
		})
	}
	return infos, nil
}

// Name returns the tier name.
func (f *FileBackend) Name() string {
	return "file"
}

// Close implements Backend. Nothing to release.
func (f *FileBackend) Close() error {
	return nil
}
