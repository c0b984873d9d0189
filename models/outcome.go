// models/outcome.go
package models

import "time"

// Status is the terminal state of a collector run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// FailureKind classifies why a fetch, parse or write failed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransport FailureKind = "transport"
	FailureStatus    FailureKind = "status"
	FailureParse     FailureKind = "parse"
	FailureStorage   FailureKind = "storage"
	FailureEmpty     FailureKind = "empty"
	FailurePanic     FailureKind = "panic"
)

// PartialFailure records one item of a batch that failed without failing
// the batch, e.g. a single president's approval page.
type PartialFailure struct {
	Item   string      `json:"item"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Outcome is the explicit result of one collector run.
type Outcome struct {
	Collector  string           `json:"collector"`
	Status     Status           `json:"status"`
	Kind       FailureKind      `json:"kind,omitempty"`
	Object     *StorageObject   `json:"object,omitempty"`
	Records    int              `json:"records"`
	Partial    []PartialFailure `json:"partial,omitempty"`
	Err        error            `json:"-"`
	Reason     string           `json:"reason,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Succeeded reports whether the collector produced and stored its artifact.
func (o Outcome) Succeeded() bool { return o.Status == StatusSucceeded }

// Succeed marks the outcome as stored under obj.
func (o *Outcome) Succeed(obj StorageObject, records int) {
	o.Status = StatusSucceeded
	o.Object = &obj
	o.Records = records
	o.Kind = FailureNone
	o.Err = nil
	o.Reason = ""
}

// Fail marks the outcome failed with the given classification.
func (o *Outcome) Fail(kind FailureKind, err error) {
	o.Status = StatusFailed
	o.Kind = kind
	o.Err = err
	if err != nil {
		o.Reason = err.Error()
	}
}
