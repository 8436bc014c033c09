// Package blobstore abstracts the object store holding source videos, session
// records, and analysis artifacts. Artifacts and records are always written
// with Cache-Control: no-store so the review surface never sees stale state.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned when the requested object is absent.
var ErrNotExist = errors.New("blobstore: object does not exist")

// IsNotExist reports whether err indicates an absent object.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// CacheControl applied to every object this worker writes.
const CacheControl = "no-store"

// Store is the object storage contract.
type Store interface {
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// DownloadToFile copies the object at key to a local path.
	DownloadToFile(ctx context.Context, key, localPath string) error

	// UploadFromFile writes a local file to key with the given content type.
	UploadFromFile(ctx context.Context, localPath, key, contentType string) error

	// ReadJSON unmarshals the object at key into v. Returns ErrNotExist when absent.
	ReadJSON(ctx context.Context, key string, v any) error

	// WriteJSON marshals v and writes it to key.
	WriteJSON(ctx context.Context, key string, v any) error

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
