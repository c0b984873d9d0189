// models/meta.go
package models

import "time"

// IngestionRun is one row of the ingestion_runs ledger: the persisted form of
// an Outcome, written after every collector invocation.
type IngestionRun struct {
	ID          int64      `db:"id" json:"id"`
	RunID       string     `db:"run_id" json:"run_id"`
	Collector   string     `db:"collector" json:"collector"`
	Status      Status     `db:"status" json:"status"`
	FailureKind string     `db:"failure_kind" json:"failure_kind,omitempty"`
	ObjectKey   string     `db:"object_key" json:"object_key,omitempty"`
	Checksum    string     `db:"checksum" json:"checksum,omitempty"`
	Records     int        `db:"records" json:"records"`
	Partial     int        `db:"partial_failures" json:"partial_failures"`
	Reason      string     `db:"reason" json:"reason,omitempty"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
