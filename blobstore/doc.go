// Package blobstore abstracts the storage backing checkpoints of the host
// weight matrix.
//
// Backends:
//   - MemoryStore: in-memory, for tests.
//   - LocalStore: local filesystem.
//   - s3.Store: Amazon S3 (subpackage blobstore/s3).
//   - minio.Store: MinIO / S3-compatible object storage (subpackage
//     blobstore/minio).
//
// Blobs are whole-object and immutable once written; Put and Close make a
// blob visible atomically, so a checkpoint manifest written last acts as the
// commit point.
package blobstore
