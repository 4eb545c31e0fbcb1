// Package fsops defines the filesystem capability the download engine
// depends on, so it can be tested deterministically against an
// in-memory implementation instead of the real filesystem.
package fsops

import "io"

// FS is the narrow filesystem capability the download engine uses.
// All operations may fail with an I/O error.
type FS interface {
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// Size returns the size of path, or ok=false if it does not exist.
	Size(path string) (size int64, ok bool, err error)
	// CreateDirAll ensures every directory component of path exists.
	CreateDirAll(path string) error
	// CreateFile creates (or truncates) path, pre-allocated to size,
	// and returns a handle for writing at arbitrary offsets.
	CreateFile(path string, size int64) (File, error)
	// Rename moves from to to, overwriting to if it exists. This is
	// used as the commit point for finalizing a completed download.
	Rename(from, to string) error
	// Remove deletes path. Removing a nonexistent path is not an error.
	Remove(path string) error
}

// File is a handle returned by FS.CreateFile.
type File interface {
	io.WriterAt
	io.Closer
}
