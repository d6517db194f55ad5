package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore is a filesystem-backed Store.
//
// Each key maps to one file under the root; the shard levels embedded
// in the key become directories. Atomicity holds within a single
// process: a per-key mutex serializes the read-compare-rename cycle.
// Multi-process deployments should use the DynamoDB backend instead.
type LocalStore struct {
	root  string
	locks sync.Map // key -> *sync.Mutex
}

// NewLocalStore creates a store rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStore) lock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns the current value.
func (s *LocalStore) Get(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CompareAndSwap atomically sets key to next if the current value
// equals expected.
func (s *LocalStore) CompareAndSwap(_ context.Context, key, expected, next string) error {
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	path := s.path(key)

	var actual string
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		actual = ""
	case err != nil:
		return err
	default:
		actual = string(data)
	}

	if actual != expected {
		return &CASError{Key: key, Expected: expected, Actual: actual}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("kv: create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("kv: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(next); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("kv: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("kv: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kv: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kv: rename: %w", err)
	}
	return nil
}
