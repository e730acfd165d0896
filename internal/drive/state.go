package drive

import (
	"encoding/json"
	"os"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/storage"
)

// stateSchemaVersion versions the sync state file itself, independently of
// the collection schema.
const stateSchemaVersion = 1

// FileState is the last-synced fingerprint of one canonical file: what the
// remote side looked like and what the local file hashed to when both sides
// last agreed.
type FileState struct {
	FileID            string `json:"file_id,omitempty"`
	DriveMD5          string `json:"drive_md5,omitempty"`
	DriveModifiedTime string `json:"drive_modified_time,omitempty"`
	LocalSHA256       string `json:"local_sha256,omitempty"`
	LocalMD5          string `json:"local_md5,omitempty"`
}

// known reports whether any prior sync recorded this file.
func (f FileState) known() bool {
	return f.FileID != "" || f.DriveMD5 != "" || f.DriveModifiedTime != "" || f.LocalSHA256 != ""
}

// SyncState is the persisted content of the drive state file.
type SyncState struct {
	SchemaVersion int                  `json:"schema_version"`
	Mode          string               `json:"mode"`
	FolderID      string               `json:"folder_id,omitempty"`
	LastSyncAt    string               `json:"last_sync_at,omitempty"`
	Files         map[string]FileState `json:"files"`
}

// LoadState reads the sync state file. A missing or unreadable file yields
// an empty state rather than an error so a fresh install syncs cleanly.
func LoadState(path, mode string) *SyncState {
	st := &SyncState{SchemaVersion: stateSchemaVersion, Mode: mode, Files: map[string]FileState{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return &SyncState{SchemaVersion: stateSchemaVersion, Mode: mode, Files: map[string]FileState{}}
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = stateSchemaVersion
	}
	if st.Mode == "" {
		st.Mode = mode
	}
	if st.Files == nil {
		st.Files = map[string]FileState{}
	}
	return st
}

// SaveState writes the sync state file atomically.
func SaveState(path string, st *SyncState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return apperr.IO("could not encode sync state", err)
	}
	if err := storage.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return apperr.IO("could not write sync state", err)
	}
	return nil
}
