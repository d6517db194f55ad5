// Package cas is the content store: immutable JSON documents and raw
// blobs addressed by CID over a blobstore substrate.
//
// A document's CID is computed from its canonical codec bytes before
// the write, so a Put of already-present content is detected by address
// and skipped. That is the whole duplicate-write story: there is no
// separate dedup index.
package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/Arke-Institute/arke/blobstore"
	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/codec"
)

// ErrNotFound is returned when no blob exists for a CID.
var ErrNotFound = errors.New("cas: content not found")

// ErrUnavailable wraps substrate failures: the content store could not
// accept or serve the request. Transient by contract; retry policy is
// the caller's.
var ErrUnavailable = errors.New("cas: content store unavailable")

// Store reads and writes content-addressed documents and blobs.
type Store struct {
	blobs blobstore.Store
	codec codec.Codec
}

// New creates a content store. If c is nil, codec.Default is used.
func New(blobs blobstore.Store, c codec.Codec) *Store {
	if c == nil {
		c = codec.Default
	}
	return &Store{blobs: blobs, codec: c}
}

// Codec returns the codec documents are encoded with.
func (s *Store) Codec() codec.Codec { return s.codec }

// blobName maps a CID to its substrate key, sharded by digest tail.
func blobName(c cid.CID) string {
	return "cas/" + c.Shard() + "/" + string(c)
}

// PutJSON encodes v with the canonical codec and stores it under its
// content address. Identical inputs always yield the identical CID.
func (s *Store) PutJSON(ctx context.Context, v any) (cid.CID, error) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cas: encode: %w", err)
	}
	return s.put(ctx, cid.SumJSON(data), data)
}

// PutBytes stores an opaque blob under its content address.
func (s *Store) PutBytes(ctx context.Context, data []byte) (cid.CID, error) {
	return s.put(ctx, cid.Sum(data), data)
}

func (s *Store) put(ctx context.Context, c cid.CID, data []byte) (cid.CID, error) {
	name := blobName(c)

	// Content is immutable: if the address already resolves, the bytes
	// are already there.
	ok, err := s.blobs.Has(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if ok {
		return c, nil
	}

	if err := s.blobs.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return c, nil
}

// GetJSON fetches and decodes the document at c into v.
func (s *Store) GetJSON(ctx context.Context, c cid.CID, v any) error {
	data, err := s.GetBytes(ctx, c)
	if err != nil {
		return err
	}
	if err := s.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cas: decode %s: %w", c, err)
	}
	return nil
}

// GetBytes fetches the raw bytes at c.
func (s *Store) GetBytes(ctx context.Context, c cid.CID) ([]byte, error) {
	data, err := s.blobs.Get(ctx, blobName(c))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return data, nil
}

// Has reports whether content exists for c.
func (s *Store) Has(ctx context.Context, c cid.CID) (bool, error) {
	ok, err := s.blobs.Has(ctx, blobName(c))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ok, nil
}
