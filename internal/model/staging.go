package model

import (
	"database/sql"
	"time"
)

// ChangeState marks whether a staging record needs to be projected onto the
// platform. FAILED records are still pending: the drain treats them the same
// as CHANGED so they are retried on the next pass.
type ChangeState int

const (
	StateUnchanged ChangeState = 0
	StateChanged   ChangeState = 1
	StateFailed    ChangeState = 2
)

func (s ChangeState) String() string {
	switch s {
	case StateUnchanged:
		return "UNCHANGED"
	case StateChanged:
		return "CHANGED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Pending reports whether the record still needs reconciliation.
func (s ChangeState) Pending() bool {
	return s == StateChanged || s == StateFailed
}

// Outcome of one publish attempt for a drained record.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// UpsertResult describes what staging a fragment did.
type UpsertResult struct {
	IsNew   bool
	Changed bool
}

// StagingRecord is the durable wrapper around one fragment. Exactly one row
// exists per fragment identity key; rows are mutated in place and never
// deleted, forming the change log the reconcile pipeline drains.
type StagingRecord struct {
	ID            int64          `db:"id"`
	PatientID     string         `db:"patient_id"`
	EpisodeID     string         `db:"episode_id"`
	OperationID   string         `db:"operation_id"`
	AdmissionDate string         `db:"admission_date"`
	SourceUpdate  string         `db:"source_update"`
	Payload       string         `db:"payload"`
	PrevPayload   sql.NullString `db:"previous_payload"`
	ChangeState   ChangeState    `db:"change_state"`
	LastError     sql.NullString `db:"last_error"`
	CreatedAt     time.Time      `db:"created_at"`
	LastUpdatedAt time.Time      `db:"last_updated_at"`
}

// EpisodeKey identifies the episode this record belongs to.
func (r *StagingRecord) EpisodeKey() string {
	return r.PatientID + "/" + r.EpisodeID
}

// CurrentPayload decodes the last-seen payload.
func (r *StagingRecord) CurrentPayload() (Payload, error) {
	return ParsePayload(r.Payload)
}

// PreviousPayload decodes the payload as of the last successful publish, or
// nil when the record has never been published.
func (r *StagingRecord) PreviousPayload() (Payload, error) {
	if !r.PrevPayload.Valid {
		return nil, nil
	}
	return ParsePayload(r.PrevPayload.String)
}
