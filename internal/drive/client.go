// Package drive synchronizes the local collection files with Google Drive.
// It keeps per-file sync state so a smart sync can tell which side moved
// since the last run, and it never resolves a divergence by overwriting
// either side.
package drive

import "context"

// FileMeta is the remote metadata the sync engine cares about.
type FileMeta struct {
	ID           string
	Name         string
	MD5          string
	ModifiedTime string
	Size         int64
}

// RemoteClient is the remote file store the sync engine talks to.
// The production implementation is Google Drive v3; tests substitute an
// in-memory fake.
type RemoteClient interface {
	// Find looks a file up by name in the sync space. A nil FileMeta with a
	// nil error means the file does not exist remotely.
	Find(ctx context.Context, filename string) (*FileMeta, error)

	// Metadata fetches metadata by file id. A nil FileMeta with a nil error
	// means the id no longer resolves.
	Metadata(ctx context.Context, fileID string) (*FileMeta, error)

	// Download returns the full content of a remote file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Upload creates or, when existingID is set, replaces a remote file and
	// returns its fresh metadata.
	Upload(ctx context.Context, filename string, data []byte, existingID string) (*FileMeta, error)
}
