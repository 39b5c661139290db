// Package runlog records pipeline runs in the run history store. Persistence
// is best-effort: a run that cannot write its history still runs, the failure
// is only logged.
package runlog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
	"github.com/medlink/hospital-sync/pkg/logger"
)

// Recorder opens runs against a run history repository.
type Recorder struct {
	repo   repository.RunHistoryRepository
	logger *logger.Logger
}

func NewRecorder(repo repository.RunHistoryRepository, log *logger.Logger) *Recorder {
	return &Recorder{repo: repo, logger: log}
}

// Run is one open pipeline run.
type Run struct {
	rec  *Recorder
	hist model.RunHistory
	log  []string
}

// Start opens and persists a new run of the given type.
func (r *Recorder) Start(ctx context.Context, runType string) *Run {
	run := &Run{
		rec: r,
		hist: model.RunHistory{
			ID:        uuid.New(),
			RunType:   runType,
			Status:    model.RunIdle,
			StartedAt: time.Now(),
		},
	}
	if err := r.repo.Create(ctx, &run.hist); err != nil {
		r.logger.Error(err, "failed to persist run start", "run_type", runType)
	}
	return run
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID {
	return r.hist.ID
}

// AppendLog adds one line to the run's error log and persists it.
func (r *Run) AppendLog(ctx context.Context, line string) {
	r.log = append(r.log, line)
	r.hist.Log = strings.Join(r.log, "\n")
	r.persist(ctx)
}

// SetProgress updates the operator-facing progress message.
func (r *Run) SetProgress(ctx context.Context, msg string) {
	r.hist.Message = msg
	r.persist(ctx)
}

// Finish closes the run with its final status and message.
func (r *Run) Finish(ctx context.Context, status model.RunStatus, msg string) {
	now := time.Now()
	r.hist.Status = status
	r.hist.Message = msg
	r.hist.FinishedAt = &now
	r.persist(ctx)
}

func (r *Run) persist(ctx context.Context) {
	if err := r.rec.repo.Update(ctx, &r.hist); err != nil {
		r.rec.logger.Error(err, "failed to persist run progress", "run_id", r.hist.ID.String())
	}
}
