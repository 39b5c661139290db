package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the overall outcome of one pipeline run.
type RunStatus string

const (
	// RunIdle means the run had nothing to do.
	RunIdle RunStatus = "IDLE"
	// RunSuccess means at least one item was processed and none failed.
	RunSuccess RunStatus = "SUCCESS"
	// RunError means at least one item failed, or the run could not start.
	// Successfully processed items stay applied; partial success is normal.
	RunError RunStatus = "ERROR"
)

// Run types recorded in the run history.
const (
	RunTypeFetch     = "fetch"
	RunTypeReconcile = "reconcile"
)

// RunResult is the record returned to schedulers and monitors.
type RunResult struct {
	Status  RunStatus      `json:"status"`
	Message string         `json:"message"`
	Counts  map[string]int `json:"counts"`
}

// RunHistory is one persisted run, with an appendable log of per-item errors.
type RunHistory struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	RunType    string     `db:"run_type" json:"run_type"`
	Status     RunStatus  `db:"status" json:"status"`
	Message    string     `db:"message" json:"message"`
	Log        string     `db:"log" json:"log"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// FetchCounts aggregates per-fragment outcomes of a fetch-and-stage run.
type FetchCounts struct {
	Processed int
	New       int
	Updated   int
	Ignored   int
	Failed    int
}

// Message renders the operator-facing progress line.
func (c FetchCounts) Message(fromDate string, total int) string {
	progress := 100.0
	if total > 0 {
		progress = 100 * float64(c.Processed) / float64(total)
	}
	return fmt.Sprintf("Processed from %s: %d (%.1f%%), New: %d, Updated: %d, Ignored: %d, Failed: %d",
		fromDate, c.Processed, progress, c.New, c.Updated, c.Ignored, c.Failed)
}

// Map returns the counts for a RunResult.
func (c FetchCounts) Map() map[string]int {
	return map[string]int{
		"processed": c.Processed,
		"new":       c.New,
		"updated":   c.Updated,
		"ignored":   c.Ignored,
		"failed":    c.Failed,
	}
}

// PublishCounts aggregates per-episode outcomes of a reconcile run.
type PublishCounts struct {
	Processed int
	Success   int
	Failed    int
}

// Message renders the operator-facing progress line.
func (c PublishCounts) Message(totalExpected int) string {
	progress := 100.0
	if totalExpected > 0 {
		progress = 100 * float64(c.Processed) / float64(totalExpected)
	}
	return fmt.Sprintf("Processed: %d (%.1f%%), Success: %d, Failed: %d",
		c.Processed, progress, c.Success, c.Failed)
}

// Map returns the counts for a RunResult.
func (c PublishCounts) Map() map[string]int {
	return map[string]int{
		"processed": c.Processed,
		"success":   c.Success,
		"failed":    c.Failed,
	}
}

// Status derives the run status from the counts: IDLE when nothing was
// processed, ERROR when anything failed, SUCCESS otherwise.
func (c PublishCounts) Status() RunStatus {
	switch {
	case c.Processed == 0:
		return RunIdle
	case c.Failed > 0:
		return RunError
	default:
		return RunSuccess
	}
}

// Status derives the run status from the counts.
func (c FetchCounts) Status() RunStatus {
	switch {
	case c.Processed == 0:
		return RunIdle
	case c.Failed > 0:
		return RunError
	default:
		return RunSuccess
	}
}
