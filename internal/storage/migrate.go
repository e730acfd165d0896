package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
)

// SchemaVersion is the version this build writes and requires.
const SchemaVersion = 1

// MarkerFilename is the schema marker persisted alongside the collections.
const MarkerFilename = "config.json"

// marker is the persisted schema-version document.
type marker struct {
	SchemaVersion int    `json:"schema_version"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Migrator brings the data directory to the current schema version before
// the record store loads. The marker only ever advances.
type Migrator struct {
	w   *Writer
	log zerolog.Logger
}

// NewMigrator creates a migrator writing through the durable writer.
func NewMigrator(w *Writer, log zerolog.Logger) *Migrator {
	return &Migrator{w: w, log: log}
}

type migration struct {
	version     int // version after the step
	description string
	apply       func(ctx context.Context, m *Migrator) error
}

// migrations holds the ordered steps i -> i+1. Index n migrates version n
// to n+1.
var migrations = []migration{
	{
		version:     1,
		description: "create collections and add missing columns",
		apply:       migrateInitialLayout,
	},
}

// EnsureUpToDate reads the schema marker (0 when absent), applies each
// pending step in order and persists the marker after every successful step,
// so a crash mid-migration resumes instead of repeating completed steps.
// It avoids rewriting files when nothing is missing, to prevent backup churn
// on every startup.
func (m *Migrator) EnsureUpToDate(ctx context.Context) error {
	if err := os.MkdirAll(m.w.dataDir, 0o755); err != nil {
		return apperr.Migration("could not create data directory", err)
	}
	if err := os.MkdirAll(m.w.backupsDir, 0o755); err != nil {
		return apperr.Migration("could not create backups directory", err)
	}
	if err := os.MkdirAll(filepath.Join(m.w.dataDir, ".secrets"), 0o700); err != nil {
		return apperr.Migration("could not create secrets directory", err)
	}

	current, err := m.readMarker()
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return apperr.Migration(fmt.Sprintf(
			"data directory has schema version %d, this build supports up to %d",
			current, SchemaVersion), nil)
	}

	for _, step := range migrations {
		if step.version <= current {
			continue
		}
		m.log.Info().
			Int("from", current).
			Int("to", step.version).
			Str("step", step.description).
			Msg("Applying schema migration")

		if err := step.apply(ctx, m); err != nil {
			return apperr.Migration(
				fmt.Sprintf("migration to version %d failed", step.version), err)
		}
		if err := m.writeMarker(ctx, step.version); err != nil {
			return err
		}
		current = step.version
	}
	return nil
}

func (m *Migrator) markerPath() string {
	return filepath.Join(m.w.dataDir, MarkerFilename)
}

func (m *Migrator) readMarker() (int, error) {
	data, err := os.ReadFile(m.markerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // pre-versioning layout
		}
		return 0, apperr.Migration("could not read schema marker", err)
	}
	var mk marker
	if err := json.Unmarshal(data, &mk); err != nil {
		return 0, apperr.Migration("schema marker is not valid JSON", err)
	}
	return mk.SchemaVersion, nil
}

func (m *Migrator) writeMarker(ctx context.Context, version int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	mk := marker{SchemaVersion: version, UpdatedAt: now}

	if data, err := os.ReadFile(m.markerPath()); err == nil {
		var prev marker
		if json.Unmarshal(data, &prev) == nil && prev.CreatedAt != "" {
			mk.CreatedAt = prev.CreatedAt
		}
	}
	if mk.CreatedAt == "" {
		mk.CreatedAt = now
	}

	payload, err := json.MarshalIndent(mk, "", "  ")
	if err != nil {
		return apperr.Migration("could not encode schema marker", err)
	}
	payload = append(payload, '\n')

	if err := m.w.WriteBytes(ctx, MarkerFilename, payload); err != nil {
		return apperr.Migration("could not persist schema marker", err)
	}
	return nil
}

// migrateInitialLayout creates missing collection files with the canonical
// header and rewrites files whose header lacks canonical columns, filling
// the new columns with defaults. Files that already carry every canonical
// column are left untouched.
func migrateInitialLayout(ctx context.Context, m *Migrator) error {
	for _, spec := range Specs {
		path := m.w.CollectionPath(spec)

		rows, err := ReadCollection(path, spec)
		if err != nil {
			return err
		}

		if _, statErr := os.Stat(path); statErr == nil {
			missing, headerErr := headerMissingColumns(path, spec)
			if headerErr != nil {
				return headerErr
			}
			if !missing {
				continue
			}
		}

		if err := m.w.WriteCollection(ctx, spec, rows); err != nil {
			return err
		}
	}
	return nil
}

// headerMissingColumns reports whether the file's header lacks any canonical
// column.
func headerMissingColumns(path string, spec Spec) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(data) == 0 {
		return true, nil
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return false, apperr.CorruptCollection(
			fmt.Sprintf("collection %s has an unreadable header: %v", spec.Name, err))
	}

	present := map[string]bool{}
	for _, col := range header {
		present[col] = true
	}
	for _, col := range spec.Columns {
		if !present[col] {
			return true, nil
		}
	}
	return false, nil
}
