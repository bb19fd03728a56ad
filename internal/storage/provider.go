// Package storage defines the project file-system abstraction.
package storage

import "github.com/starford/postlock/internal/models"

// Provider is the interface for project file operations. All paths are
// relative to the project root unless stated otherwise.
type Provider interface {
	// Root returns the absolute project root.
	Root() string
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.PostMetadata, error)
	// ListFiles returns the forward-slash paths of regular files under dir
	// for which match returns true.
	ListFiles(dir string, match func(rel string) bool) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether path exists.
	Exists(path string) bool
	// MkdirAll creates dir and its parents; existing dirs are not an error.
	MkdirAll(dir string) error
	// RemoveAll deletes dir and everything under it.
	RemoveAll(dir string) error
	// CopyFile copies src to dst, creating parent dirs and keeping mtime.
	CopyFile(src, dst string) error
	// CopyTree recursively copies the directory src to dst.
	CopyTree(src, dst string) error
	// ExtractZip extracts the archive at archivePath (any absolute or
	// working-directory path) into dst.
	ExtractZip(archivePath, dst string) (int, error)
}
