// SPDX-License-Identifier: MPL-2.0

// Package objectstore provides layer.ObjectStore implementations: an
// S3-compatible store for OSS/S3/MinIO buckets and a filesystem store.
package objectstore

import "errors"

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for an empty or root object key.
	ErrInvalidKey = errors.New("invalid object key")
)
