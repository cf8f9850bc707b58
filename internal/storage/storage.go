// Package storage provides read access to file-like objects on the local
// filesystem or in S3, for sources that read tables from files.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrReadFailed     = errors.New("read failed")
	ErrWriteFailed    = errors.New("write failed")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ObjectStorage abstracts object storage. Object paths always use forward
// slashes, whatever the backend.
type ObjectStorage interface {
	// Open streams an object. The caller must close the reader.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Stat returns an object's size and modification time.
	Stat(ctx context.Context, objectPath string) (ObjectInfo, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)

	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, objectPath string, r io.Reader) error
}
