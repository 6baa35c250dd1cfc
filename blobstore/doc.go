// Package blobstore abstracts where snapshots live: local disk, memory, or
// object storage. Blobs are immutable once written; stores publish a blob
// atomically on Close so readers never see a partial snapshot.
//
// The MemoryStore exists for tests, LocalStore for on-host backups, and the
// minio and s3 subpackages for object-storage replication. CachingStore can
// wrap any of them to serve repeated reads block by block out of an LRU
// cache.
package blobstore
