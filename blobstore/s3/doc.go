// Package s3 provides an S3 implementation of the blobstore.Store
// interface using the AWS SDK v2.
package s3
