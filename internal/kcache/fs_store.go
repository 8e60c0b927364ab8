package kcache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const entryExt = ".cbor"

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// FSStore implements Store with one CBOR file per entry:
// <baseDir>/programs/<key>.cbor
//
// Writes go to a temp file that is renamed into place, so concurrent readers
// never observe a partial entry and no locks are needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem-backed store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "programs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// Dir returns the store's base directory.
func (fs *FSStore) Dir() string { return fs.baseDir }

func (fs *FSStore) entryPath(key string) string {
	return filepath.Join(fs.baseDir, "programs", key+entryExt)
}

// Save atomically writes the entry.
func (fs *FSStore) Save(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if !validKey(entry.Key) {
		return fmt.Errorf("invalid cache key %q", entry.Key)
	}

	data, err := encMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	finalPath := fs.entryPath(entry.Key)
	tmp, err := os.CreateTemp(filepath.Dir(finalPath), entry.Key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tempPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to set cache file mode: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	slog.Debug("Program cache entry saved", "key", entry.Key, "path", finalPath)
	return nil
}

// Load reads the entry stored under key.
func (fs *FSStore) Load(key string) (*Entry, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("invalid cache key %q", key)
	}

	data, err := os.ReadFile(fs.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Key: key}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := cbor.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &entry, nil
}

// List returns metadata for all readable entries, oldest first. Corrupted
// entries are skipped.
func (fs *FSStore) List() ([]Info, error) {
	dir := filepath.Join(fs.baseDir, "programs")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	infos := []Info{}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		key := strings.TrimSuffix(de.Name(), entryExt)
		entry, err := fs.Load(key)
		if err != nil {
			slog.Warn("Failed to load program cache entry for listing", "key", key, "error", err)
			continue
		}
		infos = append(infos, entry.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Created.Before(infos[j].Created) })
	return infos, nil
}

// Delete removes the entry stored under key.
func (fs *FSStore) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}

	err := os.Remove(fs.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return &NotFoundError{Key: key}
	} else if err != nil {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}

	slog.Debug("Program cache entry deleted", "key", key)
	return nil
}
