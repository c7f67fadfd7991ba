// Package s3 implements blobstore.Store on Amazon S3, with an optional
// DynamoDB-backed snapshot catalog.
//
// Store streams snapshot blobs through multipart uploads with CRC32C
// validation and reads them back with ranged GETs. PutIfAbsent offers
// write-once semantics via S3 conditional writes.
//
// Catalog supplies what S3 itself lacks: an atomic pointer to the current
// snapshot. Exporters commit snapshot names under increasing versions
// with DynamoDB conditional writes, so concurrent exporters are detected
// instead of silently overwriting each other.
package s3
