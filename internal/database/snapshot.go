package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/askdb/askdb/internal/storage"
)

// SnapshotSource is the read side of an object store.
type SnapshotSource interface {
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// SnapshotFetch describes the outcome of FetchSnapshot. Object is only set when
// the store was consulted.
type SnapshotFetch struct {
	Downloaded bool
	Object     storage.ObjectInfo
}

// FetchSnapshot downloads key into path. An existing file is left alone unless
// overwrite is set. The download must match the size the store reports for the
// object, otherwise the existing file is kept.
func FetchSnapshot(ctx context.Context, store SnapshotSource, key, path string, overwrite bool) (SnapshotFetch, error) {
	var fetch SnapshotFetch
	if store == nil {
		return fetch, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(key) == "" {
		return fetch, fmt.Errorf("snapshot key is required")
	}
	path = FilePath(path)
	if path == "" || path == ":memory:" {
		return fetch, fmt.Errorf("snapshot target must be a file path")
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fetch, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fetch, fmt.Errorf("stat database file %q: %w", path, err)
		}
	}

	info, err := store.Stat(ctx, key)
	if err != nil {
		return fetch, fmt.Errorf("stat snapshot %q: %w", key, err)
	}
	fetch.Object = info

	reader, err := store.Get(ctx, key)
	if err != nil {
		return fetch, fmt.Errorf("get snapshot %q: %w", key, err)
	}
	defer reader.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetch, fmt.Errorf("create database directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fetch, fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, reader)
	if err != nil {
		cleanup()
		return fetch, fmt.Errorf("write snapshot: %w", err)
	}
	if written != info.Size {
		cleanup()
		return fetch, fmt.Errorf("snapshot %q is %d bytes, object store reported %d", key, written, info.Size)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fetch, fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fetch, fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fetch, fmt.Errorf("install snapshot %q: %w", path, err)
	}
	fetch.Downloaded = true
	return fetch, nil
}
