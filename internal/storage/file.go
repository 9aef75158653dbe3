package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

// File stores all keys of one scope as a single JSON object on disk.
// The file is owner-only (0600) and removed once the last key is deleted.
type File struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// NewFile creates a file-backed medium at path. The file is created lazily.
func NewFile(path string) *File {
	return &File{
		path: path,
		log:  slog.Default().With(slog.String("component", "storage-file")),
	}
}

// Path returns the backing file path
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	metrics.RecordStorageOperation(BackendFile, "get", err)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		metrics.RecordStorageOperation(BackendFile, "set", err)
		return err
	}
	values[key] = value
	err = f.write(values)
	metrics.RecordStorageOperation(BackendFile, "set", err)
	return err
}

func (f *File) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		metrics.RecordStorageOperation(BackendFile, "delete", err)
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}

	if len(values) == 0 {
		err = os.Remove(f.path)
		if os.IsNotExist(err) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("failed to remove %s: %w", f.path, err)
		}
	} else {
		err = f.write(values)
	}
	metrics.RecordStorageOperation(BackendFile, "delete", err)
	return err
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal values: %w", err)
	}

	// Write-then-rename so a concurrent reader never sees a half-written file
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

// Watch calls onChange whenever the backing file is written, replaced or
// removed, by this process or another one. It returns once the watcher is
// installed; watching stops when ctx is done.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// The directory is watched rather than the file: the file is replaced by
	// rename on every write and may not exist yet.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					f.log.Debug("storage file changed",
						slog.String("path", event.Name),
						slog.String("op", event.Op.String()))
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.log.Warn("storage watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
