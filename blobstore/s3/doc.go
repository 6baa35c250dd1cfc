// Package s3 provides an S3 blobstore backend with streaming multipart
// uploads, plus a DynamoDB-backed commit store that makes updates of the
// CURRENT snapshot pointer atomic across concurrent writers.
package s3
