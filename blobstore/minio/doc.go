// Package minio provides a blobstore.Store implementation for MinIO and
// other S3-compatible object stores using the MinIO Go client.
package minio
