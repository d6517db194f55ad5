package blobstore

import (
	"context"

	"github.com/Arke-Institute/arke/cache"
)

// CachingStore wraps a Store with a read-through byte cache.
//
// Blobs are immutable, so a hit never needs revalidation. Writes
// populate the cache so the common write-then-read pattern (append a
// manifest, immediately resolve it) is served from memory.
type CachingStore struct {
	inner Store
	cache cache.ByteCache
}

// NewCachingStore creates a caching decorator around inner.
func NewCachingStore(inner Store, c cache.ByteCache) *CachingStore {
	return &CachingStore{inner: inner, cache: c}
}

// Put writes through to the inner store and populates the cache.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}
	s.cache.Set(ctx, name, data)
	return nil
}

// Get serves from cache when possible.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(ctx, name); ok {
		return data, nil
	}
	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, name, data)
	return data, nil
}

// Has checks the cache before the inner store.
func (s *CachingStore) Has(ctx context.Context, name string) (bool, error) {
	if _, ok := s.cache.Get(ctx, name); ok {
		return true, nil
	}
	return s.inner.Has(ctx, name)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Delete delegates to the inner store. The cached entry, if any, is
// left to age out; immutable blobs are only deleted by offline GC.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}
