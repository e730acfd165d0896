// Package config resolves server settings from flags and environment
// variables. Flags win over environment variables, which win over defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Sync modes for the Drive engine.
const (
	ModeFolder  = "folder"
	ModeAppData = "appdata"
)

// Settings holds all runtime configuration for the server.
type Settings struct {
	Host     string
	Port     string
	LogLevel string

	// DataDir is the root of the local store: collection files, schema
	// marker, backups and secrets all live beneath it.
	DataDir string

	CORSOrigins []string

	// DriveSyncMode is "folder" or "appdata".
	DriveSyncMode string
	TokenPath     string
	StatePath     string
}

// Load builds Settings from the environment. Callers may override individual
// fields afterwards (cmd/api wires flag values on top).
func Load() *Settings {
	s := &Settings{
		Host:          envOr("HOST", "127.0.0.1"),
		Port:          envOr("PORT", "8123"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		DataDir:       envOr("DATA_DIR", "data"),
		DriveSyncMode: normalizeMode(os.Getenv("DRIVE_SYNC_MODE")),
		CORSOrigins:   splitCSV(os.Getenv("CORS_ORIGINS")),
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"http://127.0.0.1:5173", "http://localhost:5173"}
	}
	s.TokenPath = envOr("TOKEN_PATH", "")
	s.StatePath = envOr("DRIVE_STATE_PATH", "")
	return s
}

// Finalize resolves derived paths once DataDir is settled.
func (s *Settings) Finalize() {
	if s.TokenPath == "" {
		s.TokenPath = filepath.Join(s.DataDir, ".secrets", "google_token.json")
	}
	if s.StatePath == "" {
		s.StatePath = filepath.Join(s.DataDir, ".secrets", "drive_state.json")
	}
}

// BackupsDir returns the append-only backup directory beneath DataDir.
func (s *Settings) BackupsDir() string {
	return filepath.Join(s.DataDir, "backups")
}

// LockPath returns the single-writer lock file beneath DataDir.
func (s *Settings) LockPath() string {
	return filepath.Join(s.DataDir, ".lock")
}

func normalizeMode(m string) string {
	if strings.ToLower(strings.TrimSpace(m)) == ModeAppData {
		return ModeAppData
	}
	return ModeFolder
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
