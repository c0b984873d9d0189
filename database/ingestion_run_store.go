// database/ingestion_run_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gewnthar/civicpulse/models"
)

// RunStore persists collector outcomes to the ingestion_runs ledger.
type RunStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunStore(db *sql.DB, logger *slog.Logger) *RunStore {
	return &RunStore{db: db, logger: logger.With("component", "run_store")}
}

// Record inserts one ledger row for outcome o of orchestrator run runID.
func (s *RunStore) Record(ctx context.Context, runID string, o models.Outcome) (int64, error) {
	var key, checksum string
	if o.Object != nil {
		key, checksum = o.Object.Key, o.Object.Checksum
	}
	var finished any
	if !o.FinishedAt.IsZero() {
		finished = o.FinishedAt.UTC().Format(dateTimeLayout)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (
			run_id, collector, status, failure_kind, object_key, checksum,
			records, partial_failures, reason, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.Collector, string(o.Status), string(o.Kind), key, checksum,
		o.Records, len(o.Partial), o.Reason, o.StartedAt.UTC().Format(dateTimeLayout), finished,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record ingestion run for %s: %w", o.Collector, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ingestion run id: %w", err)
	}
	s.logger.DebugContext(ctx, "recorded ingestion run", "id", id, "collector", o.Collector, "status", o.Status)
	return id, nil
}

// Recent returns the newest limit ledger rows, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, collector, status, failure_kind, object_key, checksum,
		       records, partial_failures, reason, started_at, finished_at
		FROM ingestion_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion_runs: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestionRun
	for rows.Next() {
		var r models.IngestionRun
		var status string
		var reason sql.NullString
		var started, finished nullTime

		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Collector, &status, &r.FailureKind, &r.ObjectKey, &r.Checksum,
			&r.Records, &r.Partial, &reason, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion_runs row: %w", err)
		}
		r.Status = models.Status(status)
		r.Reason = reason.String
		r.StartedAt = started.Time
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion_runs rows: %w", err)
	}
	return runs, nil
}
