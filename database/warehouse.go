// database/warehouse.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

// ErrEmptySnapshot means the snapshot table has no rows.
var ErrEmptySnapshot = errors.New("snapshot table is empty")

// Warehouse reads the weekly feature snapshot and appends forecasts.
// Table and column names come from validated configuration.
type Warehouse struct {
	db     *sql.DB
	cfg    config.ForecastConfig
	logger *slog.Logger
}

func NewWarehouse(db *sql.DB, cfg config.ForecastConfig, logger *slog.Logger) *Warehouse {
	return &Warehouse{db: db, cfg: cfg, logger: logger.With("component", "warehouse")}
}

// LatestSnapshot loads every row of the newest run_date ordered by week.
// Columns other than the date and run date columns that hold non-numeric
// values are left out of the snapshot.
func (w *Warehouse) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	query := fmt.Sprintf(
		"SELECT * FROM %[1]s WHERE %[2]s = (SELECT MAX(%[2]s) FROM %[1]s) ORDER BY %[3]s",
		w.cfg.SnapshotTable, w.cfg.RunDateColumn, w.cfg.DateColumn)

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", w.cfg.SnapshotTable, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", w.cfg.SnapshotTable, err)
	}

	dateIdx, runIdx := -1, -1
	for i, c := range cols {
		switch c {
		case w.cfg.DateColumn:
			dateIdx = i
		case w.cfg.RunDateColumn:
			runIdx = i
		}
	}
	if dateIdx < 0 || runIdx < 0 {
		return nil, fmt.Errorf("table %s lacks %s or %s", w.cfg.SnapshotTable, w.cfg.DateColumn, w.cfg.RunDateColumn)
	}

	snap := &models.Snapshot{}
	series := make([][]float64, len(cols))
	numeric := make([]bool, len(cols))
	for i := range numeric {
		numeric[i] = i != dateIdx && i != runIdx
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", w.cfg.SnapshotTable, err)
		}

		week, ok := asTime(values[dateIdx])
		if !ok {
			return nil, fmt.Errorf("row %d: invalid %s %v", len(snap.Weeks)+1, w.cfg.DateColumn, values[dateIdx])
		}
		if snap.RunDate.IsZero() {
			if rd, ok := asTime(values[runIdx]); ok {
				snap.RunDate = rd
			}
		}
		snap.Weeks = append(snap.Weeks, week)

		for i, v := range values {
			if !numeric[i] {
				continue
			}
			f, ok := asFloat(v)
			if !ok {
				numeric[i] = false
				continue
			}
			series[i] = append(series[i], f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", w.cfg.SnapshotTable, err)
	}
	if len(snap.Weeks) == 0 {
		return nil, ErrEmptySnapshot
	}

	for i, c := range cols {
		if i == dateIdx || i == runIdx {
			continue
		}
		if !numeric[i] {
			w.logger.WarnContext(ctx, "skipping non-numeric column", "column", c)
			continue
		}
		snap.Columns = append(snap.Columns, c)
		snap.Series = append(snap.Series, series[i])
	}

	w.logger.InfoContext(ctx, "loaded snapshot",
		"table", w.cfg.SnapshotTable, "run_date", snap.RunDate.Format(dateLayout),
		"weeks", len(snap.Weeks), "columns", len(snap.Columns))
	return snap, nil
}

// AppendForecasts inserts records into the output table in one transaction.
// Existing rows are never touched.
func (w *Warehouse) AppendForecasts(ctx context.Context, records []models.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for forecasts: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (week_start, predicted_orders, bq_load_dt) VALUES (?, ?, ?)", w.cfg.OutputTable))
	if err != nil {
		return fmt.Errorf("failed to prepare forecast insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if math.IsNaN(r.PredictedOrders) || math.IsInf(r.PredictedOrders, 0) {
			return fmt.Errorf("forecast for week %s is not finite", r.WeekStart.Format(dateLayout))
		}
		if _, err := stmt.ExecContext(ctx,
			r.WeekStart.Format(dateLayout), r.PredictedOrders, r.LoadDate.Format(dateLayout),
		); err != nil {
			return fmt.Errorf("failed to insert forecast for week %s: %w", r.WeekStart.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit forecasts: %w", err)
	}
	w.logger.InfoContext(ctx, "appended forecasts", "table", w.cfg.OutputTable, "rows", len(records))
	return nil
}

// Forecasts reads back the output table, oldest load first.
func (w *Warehouse) Forecasts(ctx context.Context) ([]models.ForecastRecord, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT week_start, predicted_orders, bq_load_dt FROM %s ORDER BY bq_load_dt, week_start", w.cfg.OutputTable))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", w.cfg.OutputTable, err)
	}
	defer rows.Close()

	var out []models.ForecastRecord
	for rows.Next() {
		var week, load any
		var r models.ForecastRecord
		if err := rows.Scan(&week, &r.PredictedOrders, &load); err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		var ok bool
		if r.WeekStart, ok = asTime(week); !ok {
			return nil, fmt.Errorf("invalid week_start %v", week)
		}
		if r.LoadDate, ok = asTime(load); !ok {
			return nil, fmt.Errorf("invalid bq_load_dt %v", load)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

