package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
)

// Writer is the durable writer: every collection write goes through the
// cross-process lock, takes a timestamped backup of the prior content and
// lands via an atomic rename. A failed write leaves the destination
// byte-identical to before the attempt.
type Writer struct {
	dataDir    string
	backupsDir string
	lock       *WriterLock
	log        zerolog.Logger
}

// NewWriter creates a durable writer rooted at dataDir.
func NewWriter(dataDir, backupsDir string, lock *WriterLock, log zerolog.Logger) *Writer {
	return &Writer{dataDir: dataDir, backupsDir: backupsDir, lock: lock, log: log}
}

// DataDir returns the root directory of the store.
func (w *Writer) DataDir() string { return w.dataDir }

// CollectionPath returns the on-disk path of a collection file.
func (w *Writer) CollectionPath(spec Spec) string {
	return filepath.Join(w.dataDir, spec.Filename)
}

// WriteCollection persists the full row set of one collection.
func (w *Writer) WriteCollection(ctx context.Context, spec Spec, rows []Row) error {
	data, err := EncodeCollection(rows, spec)
	if err != nil {
		return apperr.IO(fmt.Sprintf("could not encode collection %s", spec.Name), err)
	}
	return w.WriteBytes(ctx, spec.Filename, data)
}

// WriteBytes durably replaces the named file under the data directory.
// Sync pulls use this path too, so remote-originated writes get the same
// backup and atomicity guarantees as API writes.
func (w *Writer) WriteBytes(ctx context.Context, filename string, data []byte) error {
	if err := w.lock.Acquire(ctx); err != nil {
		return err
	}
	defer w.lock.Release()

	target := filepath.Join(w.dataDir, filename)

	backup, err := BackupFile(target, w.backupsDir)
	if err != nil {
		return apperr.IO(fmt.Sprintf("could not back up %s", filename), err)
	}

	if err := WriteFileAtomic(target, data); err != nil {
		return apperr.IO(fmt.Sprintf("could not write %s", filename), err)
	}

	w.log.Debug().
		Str("file", filename).
		Int("bytes", len(data)).
		Str("backup", filepath.Base(backup)).
		Msg("Collection written")
	return nil
}
