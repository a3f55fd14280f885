// Package engine defines the storage-engine boundary the transaction core
// talks to, and a reference local-filesystem implementation. Everything
// above this package is storage-agnostic: object-store, HDFS, or local disk
// engines all satisfy the same interface.
package engine

import (
	"context"
	"errors"
	"io"
)

// ErrFileAlreadyExists is returned by WriteJSONAtomically when path already
// exists; the commit pipeline treats this as "lost the race for this
// version" and hands off to the conflict resolver.
var ErrFileAlreadyExists = errors.New("engine: file already exists")

// FileStatus describes one entry returned by ListFrom.
type FileStatus struct {
	Path             string
	Size             int64
	ModificationTime int64 // millis since epoch
}

// Engine is the storage boundary: listing, reading, and atomically writing
// the commit log's files. Implementations must make WriteJSONAtomically a
// true compare-and-swap against a non-existent path: this is the core's
// only mutual-exclusion primitive (spec.md §5).
type Engine interface {
	// ListFrom lists files whose name is lexically >= the given prefix,
	// in ascending order. Used to discover commit/checkpoint/crc files
	// from a version onward.
	ListFrom(ctx context.Context, dir, prefix string) ([]FileStatus, error)

	// ReadJSON opens path for a line-delimited JSON read. The caller is
	// responsible for closing the reader.
	ReadJSON(ctx context.Context, path string) (io.ReadCloser, error)

	// WriteJSONAtomically creates path and copies the full contents of r
	// into it, failing with ErrFileAlreadyExists if path already exists
	// (and overwrite is false). With overwrite true (used by checkpoint
	// and checksum hooks, never by commit-file writes) any existing file
	// is replaced.
	WriteJSONAtomically(ctx context.Context, path string, r io.Reader, overwrite bool) error

	// Mkdirs ensures dir (and its parents) exist, reporting whether it
	// created a new directory.
	Mkdirs(ctx context.Context, dir string) (bool, error)
}
