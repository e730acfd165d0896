// Package storage implements the on-disk layer of the local store: delimited
// collection files, crash-safe writes with backups, content digests, the
// cross-process single-writer lock and schema migrations.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// renameHook runs after the temporary file is durable but before the rename.
// Tests inject a fault here to prove the destination is untouched when the
// process dies mid-write.
var renameHook func() error

// WriteFileAtomic writes data to path so the destination always holds either
// the old or the new complete content. The temporary file lives in the same
// directory as path so the final rename stays on one filesystem.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if renameHook != nil {
		if err := renameHook(); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename over %s: %w", path, err)
	}
	return nil
}

// TimestampCompact formats t as the UTC stamp used in backup and conflict
// file names.
func TimestampCompact(t time.Time) string {
	return t.UTC().Format("20060102-150405")
}

// BackupFile copies the current content of src into backupsDir under a
// timestamped name. A missing src is not an error; it returns "".
func BackupFile(src, backupsDir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s for backup: %w", src, err)
	}

	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return "", fmt.Errorf("create backups dir: %w", err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	name := fmt.Sprintf("%s.%s%s", stem, TimestampCompact(time.Now()), ext)
	dst := filepath.Join(backupsDir, name)

	// Backups are immutable; never overwrite one written in the same second.
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(backupsDir, fmt.Sprintf("%s.%s-%d%s", stem, TimestampCompact(time.Now()), i, ext))
	}

	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup %s: %w", dst, err)
	}
	return dst, nil
}
