package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/budget-backend/internal/logger"
	"github.com/dvloznov/budget-backend/internal/storage"
)

var (
	dataDir  = flag.String("data-dir", "data", "Path to the data directory")
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	check    = flag.Bool("check", false, "Report the schema version without migrating")
)

func main() {
	flag.Parse()
	log := logger.NewWithLevel(*logLevel)

	if *check {
		version, err := readVersion(*dataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read schema marker")
		}
		fmt.Printf("data directory: %s\n", *dataDir)
		fmt.Printf("schema version: %d (current is %d)\n", version, storage.SchemaVersion)
		if version > storage.SchemaVersion {
			os.Exit(1)
		}
		return
	}

	lock := storage.NewWriterLock(filepath.Join(*dataDir, ".lock"), storage.DefaultLockWait)
	w := storage.NewWriter(*dataDir, filepath.Join(*dataDir, "backups"), lock, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := storage.NewMigrator(w, log).EnsureUpToDate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	fmt.Printf("Data directory %s is at schema version %d.\n", *dataDir, storage.SchemaVersion)
}

// readVersion reads the schema marker directly; a missing marker means a
// pre-versioning (or empty) data directory.
func readVersion(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, storage.MarkerFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var mk struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &mk); err != nil {
		return 0, fmt.Errorf("schema marker is not valid JSON: %w", err)
	}
	return mk.SchemaVersion, nil
}
