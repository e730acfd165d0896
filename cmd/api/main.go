package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-backend/internal/api/handlers"
	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/config"
	"github.com/dvloznov/budget-backend/internal/drive"
	"github.com/dvloznov/budget-backend/internal/export"
	"github.com/dvloznov/budget-backend/internal/importer"
	"github.com/dvloznov/budget-backend/internal/logger"
	"github.com/dvloznov/budget-backend/internal/storage"
	"github.com/dvloznov/budget-backend/internal/store"
)

func main() {
	cfg := config.Load()

	// Parse command-line flags; flags win over environment variables.
	var (
		host    = flag.String("host", cfg.Host, "HTTP server host")
		port    = flag.String("port", cfg.Port, "HTTP server port")
		dataDir = flag.String("data-dir", cfg.DataDir, "root directory of the local store")
	)
	flag.Parse()
	cfg.Host, cfg.Port, cfg.DataDir = *host, *port, *dataDir
	cfg.Finalize()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)

	ctx := context.Background()

	// Storage: single-writer lock, durable writer, schema migration.
	lock := storage.NewWriterLock(cfg.LockPath(), storage.DefaultLockWait)
	writer := storage.NewWriter(cfg.DataDir, cfg.BackupsDir(), lock, log)

	migrator := storage.NewMigrator(writer, log)
	if err := migrator.EnsureUpToDate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Schema migration failed")
	}

	st, err := store.Open(writer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load collections")
	}

	// Drive sync dials the API lazily, per operation, so a missing or
	// expired credential only fails sync requests.
	newDriveClient := func(ctx context.Context) (drive.RemoteClient, error) {
		return drive.NewService(ctx, cfg.TokenPath, cfg.DriveSyncMode)
	}
	engine := drive.NewEngine(newDriveClient, writer, st, cfg.TokenPath, cfg.StatePath, cfg.DriveSyncMode, log)

	// Initialize handlers
	mux := handlers.NewRouter(handlers.Deps{
		Categories:   handlers.NewCategoriesHandler(st, log),
		Transactions: handlers.NewTransactionsHandler(st, log),
		Budgets:      handlers.NewBudgetsHandler(st, log),
		Import:       handlers.NewImportHandler(importer.New(st, log), log),
		Export:       handlers.NewExportHandler(export.New(writer), log),
		Drive:        handlers.NewDriveHandler(engine, log),
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(cfg.CORSOrigins)(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("data_dir", cfg.DataDir).
			Str("drive_mode", cfg.DriveSyncMode).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
