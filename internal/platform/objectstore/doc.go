// Package objectstore moves provider artifacts into durable storage.
//
// Relocator downloads a provider output, sniffs its content type and
// uploads it through an Uploader. GCSUploader and S3Uploader are the two
// supported backends.
package objectstore
