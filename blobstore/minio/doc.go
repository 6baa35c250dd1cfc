// Package minio provides a blobstore backend for MinIO and other
// S3-compatible object stores, using the minio-go client.
package minio
