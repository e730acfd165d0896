// Command cli is the offline companion to the API server: it imports Cashew
// exports, writes export archives and reports sync status straight against
// the data directory, without a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/config"
	"github.com/dvloznov/budget-backend/internal/drive"
	"github.com/dvloznov/budget-backend/internal/export"
	"github.com/dvloznov/budget-backend/internal/importer"
	"github.com/dvloznov/budget-backend/internal/logger"
	"github.com/dvloznov/budget-backend/internal/storage"
	"github.com/dvloznov/budget-backend/internal/store"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(log)
	case "export":
		runExport(log)
	case "status":
		runStatus(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Budget Backend CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import    Import a Cashew CSV export into the local store")
	fmt.Println("  export    Write a zip or xlsx archive of the collections")
	fmt.Println("  status    Show record counts and Drive sync state")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openStore brings the data directory up to date and loads the collections.
func openStore(ctx context.Context, dataDir string, log zerolog.Logger) (*store.Store, *storage.Writer, error) {
	lock := storage.NewWriterLock(filepath.Join(dataDir, ".lock"), storage.DefaultLockWait)
	w := storage.NewWriter(dataDir, filepath.Join(dataDir, "backups"), lock, log)

	if err := storage.NewMigrator(w, log).EnsureUpToDate(ctx); err != nil {
		return nil, nil, err
	}
	st, err := store.Open(w, log)
	if err != nil {
		return nil, nil, err
	}
	return st, w, nil
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data", "Path to the data directory")
	file := fs.String("file", "", "Path to the Cashew CSV export")
	commit := fs.Bool("commit", false, "Write the import (default is a dry run)")
	skipDuplicates := fs.Bool("skip-duplicates", true, "Skip rows matching existing transactions")
	preserveExtras := fs.Bool("preserve-extras", false, "Keep unmapped columns on imported rows")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read import file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, _, err := openStore(ctx, *dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open store")
	}

	report, err := importer.New(st, log).ImportCashew(ctx, data, filepath.Base(*file), importer.Options{
		Commit:         *commit,
		SkipDuplicates: *skipDuplicates,
		PreserveExtras: *preserveExtras,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	mode := "dry run"
	if report.Commit {
		mode = "commit"
	}
	fmt.Printf("Import (%s) of %s:\n", mode, report.Filename)
	fmt.Printf("  rows:         %d total, %d parsed, %d invalid\n",
		report.TotalRows, report.ParsedRows, report.InvalidRows)
	fmt.Printf("  categories:   %d created\n", report.CategoriesCreated)
	fmt.Printf("  transactions: %d created, %d skipped as duplicates\n",
		report.TransactionsCreated, report.TransactionsSkipped)
	for _, warning := range report.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	for _, rowErr := range report.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
	}
	if !report.Commit {
		fmt.Println("Dry run only. Re-run with --commit to write.")
	}
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data", "Path to the data directory")
	format := fs.String("format", "zip", "Archive format: zip or xlsx")
	out := fs.String("out", "", "Output path (defaults to a timestamped name)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, w, err := openStore(ctx, *dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open store")
	}
	exporter := export.New(w)

	var data []byte
	switch *format {
	case "zip":
		data, err = exporter.Zip()
	case "xlsx":
		data, err = exporter.Xlsx()
	default:
		log.Fatal().Str("format", *format).Msg("Unknown format, expected zip or xlsx")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	path := *out
	if path == "" {
		path = export.Filename(*format, time.Now())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Could not write archive")
	}
	fmt.Printf("Wrote %s (%d bytes).\n", path, len(data))
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data", "Path to the data directory")
	fs.Parse(os.Args[2:])

	cfg := config.Load()
	cfg.DataDir = *dataDir
	cfg.TokenPath, cfg.StatePath = "", ""
	cfg.Finalize()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, w, err := openStore(ctx, *dataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open store")
	}

	page := st.ListTransactions(store.TransactionFilter{Limit: 1})
	fmt.Printf("Data directory: %s\n", w.DataDir())
	fmt.Printf("  categories:   %d\n", len(st.ListCategories()))
	fmt.Printf("  transactions: %d live\n", page.Total)

	// No client factory: the offline report shows local digests and the
	// recorded fingerprints without dialing Drive.
	engine := drive.NewEngine(nil, w, st, cfg.TokenPath, cfg.StatePath, cfg.DriveSyncMode, log)
	status, err := engine.Status(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read sync status")
	}

	connected := "not connected"
	if status.Connected {
		connected = "connected"
	}
	fmt.Printf("Google Drive: %s (mode %s)\n", connected, status.Mode)
	if status.LastSyncAt != "" {
		fmt.Printf("  last sync:  %s\n", status.LastSyncAt)
	}
	for _, f := range status.Files {
		if f.FileID != "" {
			fmt.Printf("  %-18s synced (sha256 %.12s)\n", f.Filename, f.LocalSHA256)
		} else {
			fmt.Printf("  %-18s never synced\n", f.Filename)
		}
	}
}
