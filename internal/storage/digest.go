package storage

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// SHA256File returns the hex sha256 digest of the file at path.
func SHA256File(path string) (string, error) {
	return hashFile(path, sha256.New())
}

// MD5File returns the hex md5 digest of the file at path. md5 is kept for
// parity with the Drive API's md5Checksum metadata, not for security.
func MD5File(path string) (string, error) {
	return hashFile(path, md5.New())
}

func hashFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
