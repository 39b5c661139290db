package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/medlink/hospital-sync/internal/model"
)

type (
	// StagingRepository is the durable change-detection store. One row per
	// fragment identity key; rows mutate in place and are never deleted.
	StagingRepository interface {
		// Upsert stages a fragment atomically. A new identity key inserts a
		// CHANGED row; an existing key with an identical canonical payload is
		// left untouched; a differing payload overwrites and marks CHANGED.
		Upsert(ctx context.Context, f *model.Fragment) (model.UpsertResult, error)

		// DrainPending returns one page of records whose state is CHANGED or
		// FAILED, oldest update first. Page numbers start at 1; callers
		// normally re-request the first page after marking a batch, since
		// successful publishes remove records from the pending set.
		DrainPending(ctx context.Context, pageSize, page int) ([]*model.StagingRecord, error)

		// MarkOutcome records a publish attempt for a set of records. Success
		// promotes the current payload to previous_payload and resets the
		// state to UNCHANGED; failure sets FAILED and keeps the record
		// pending.
		MarkOutcome(ctx context.Context, ids []int64, outcome model.Outcome, errMsg string) error

		// LastAdmissionDate returns the high-water admission timestamp across
		// all staged records, or "" when the store is empty.
		LastAdmissionDate(ctx context.Context) (string, error)

		// CountPending returns the number of records awaiting reconciliation.
		CountPending(ctx context.Context) (int, error)
	}

	// RunHistoryRepository persists pipeline run outcomes for operators.
	RunHistoryRepository interface {
		Create(ctx context.Context, run *model.RunHistory) error
		Update(ctx context.Context, run *model.RunHistory) error
		Get(ctx context.Context, id uuid.UUID) (*model.RunHistory, error)
		List(ctx context.Context, runType string, limit int) ([]*model.RunHistory, error)
	}
)
