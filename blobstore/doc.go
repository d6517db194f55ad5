// Package blobstore provides the byte-blob substrate under the content
// store.
//
// Built-in backends:
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with atomic tmp+rename writes
//
// S3 and MinIO backends live in the s3 and minio subpackages so their
// SDK dependencies stay out of the core import graph.
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//		Put(ctx context.Context, name string, data []byte) error
//		Get(ctx context.Context, name string) ([]byte, error)
//		Has(ctx context.Context, name string) (bool, error)
//		List(ctx context.Context, prefix string) ([]string, error)
//		Delete(ctx context.Context, name string) error
//	}
package blobstore
