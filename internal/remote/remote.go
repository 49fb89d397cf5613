// Package remote defines the contract the sync engine uses to talk to the
// cloud object store, independent of which backend implements it.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a path has no entry. Callers treat this as a
// normal outcome when probing for existence.
var ErrNotFound = errors.New("remote: not found")

// EntryKind tags a remote path as file or folder.
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// Entry is one path in the remote store. Modified and Size are only
// meaningful for files; ContentHash is optional and used for change
// detection when the backend provides it.
type Entry struct {
	Path        string
	Name        string
	Kind        EntryKind
	Modified    time.Time
	Size        int64
	ContentHash string
}

// IsFolder reports whether the entry is a folder.
func (e Entry) IsFolder() bool { return e.Kind == KindFolder }

// Store is the object-store surface the engine depends on. All paths are
// absolute, slash-separated, rooted under the configured root path.
type Store interface {
	// IsConnected performs a lightweight authenticated probe.
	IsConnected(ctx context.Context) bool
	// GetMetadata returns the entry at path, or ErrNotFound.
	GetMetadata(ctx context.Context, path string) (Entry, error)
	// ListFolder lists the immediate children of path.
	ListFolder(ctx context.Context, path string) ([]Entry, error)
	// CreateFolder creates a folder at path. Callers check existence first;
	// overwrite semantics are not assumed.
	CreateFolder(ctx context.Context, path string) error
	// Upload transfers the local file to remotePath, overwriting.
	Upload(ctx context.Context, localPath, remotePath string) error
	// Download streams the remote file to localPath.
	Download(ctx context.Context, remotePath, localPath string) error
	// Delete removes the entry at path.
	Delete(ctx context.Context, path string) error
	// Move relocates an entry, renaming automatically on name collision.
	Move(ctx context.Context, fromPath, toPath string) error
}
