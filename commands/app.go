// commands/app.go
package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gewnthar/civicpulse/database"
	"github.com/gewnthar/civicpulse/scraper"
	"github.com/gewnthar/civicpulse/services"
	"github.com/gewnthar/civicpulse/storage"
)

// openDB connects to the warehouse, or returns nil when no database is configured.
func openDB(ctx context.Context) (*sql.DB, error) {
	if !cfg.Database.Enabled() {
		logger.Info("database not configured; ingestion ledger disabled")
		return nil, nil
	}
	return database.Open(ctx, cfg.Database, logger)
}

// newOrchestrator wires the collectors, the storage backend and, when db is
// set, the ingestion ledger.
func newOrchestrator(db *sql.DB) (*services.Orchestrator, *database.RunStore, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	fetcher := scraper.NewFetcher(cfg.HTTP, logger)
	collectors := scraper.NewCollectors(cfg.Sources, fetcher, store, logger)

	var (
		runs     *database.RunStore
		recorder services.Recorder
	)
	if db != nil {
		runs = database.NewRunStore(db, logger)
		recorder = runs
	}
	return services.NewOrchestrator(collectors, recorder, cfg.Orchestrator, logger), runs, nil
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}
