package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
	apperrors "github.com/medlink/hospital-sync/pkg/errors"
)

type stagingRepository struct {
	BaseRepository
}

func NewStagingRepository(base BaseRepository) repository.StagingRepository {
	return &stagingRepository{base}
}

// Upsert relies on a single INSERT ... ON CONFLICT statement so concurrent
// fetch processes cannot race between a read and a write. The DO UPDATE is
// guarded by an IS DISTINCT FROM check: an identical canonical payload
// matches no row, GetContext returns sql.ErrNoRows, and the record is
// reported as ignored without touching its change state.
func (r *stagingRepository) Upsert(ctx context.Context, f *model.Fragment) (model.UpsertResult, error) {
	payload, err := f.Payload.Canonical()
	if err != nil {
		return model.UpsertResult{}, err
	}

	query := `
		INSERT INTO staging_records (
			patient_id, episode_id, operation_id, admission_date,
			source_update, payload, change_state, created_at, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (patient_id, episode_id, operation_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			admission_date = EXCLUDED.admission_date,
			source_update = EXCLUDED.source_update,
			change_state = $8,
			last_error = NULL,
			last_updated_at = NOW()
		WHERE staging_records.payload IS DISTINCT FROM EXCLUDED.payload
		RETURNING (xmax = 0) AS is_new
	`

	var isNew bool
	err = r.GetDB().GetContext(ctx, &isNew, query,
		f.PatientID,
		f.EpisodeID,
		f.OperationID,
		f.AdmissionTime,
		f.SourceUpdate,
		payload,
		model.StateChanged,
		model.StateChanged,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict with an identical payload: nothing to restage.
		return model.UpsertResult{}, nil
	}
	if err != nil {
		return model.UpsertResult{}, apperrors.Storage("failed to upsert staging record", err)
	}

	return model.UpsertResult{IsNew: isNew, Changed: true}, nil
}

func (r *stagingRepository) DrainPending(ctx context.Context, pageSize, page int) ([]*model.StagingRecord, error) {
	if page < 1 {
		page = 1
	}
	query := `
		SELECT * FROM staging_records
		WHERE change_state IN ($1, $2)
		ORDER BY last_updated_at, id
		LIMIT $3 OFFSET $4
	`
	var records []*model.StagingRecord
	offset := (page - 1) * pageSize
	if err := r.GetDB().SelectContext(ctx, &records, query, model.StateChanged, model.StateFailed, pageSize, offset); err != nil {
		return nil, apperrors.Storage("failed to drain pending records", err)
	}
	return records, nil
}

func (r *stagingRepository) MarkOutcome(ctx context.Context, ids []int64, outcome model.Outcome, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var query string
		var args []interface{}
		var err error

		if outcome == model.OutcomeSuccess {
			query, args, err = sqlx.In(`
				UPDATE staging_records SET
					change_state = ?,
					previous_payload = payload,
					last_error = NULL,
					last_updated_at = NOW()
				WHERE id IN (?)
			`, model.StateUnchanged, ids)
		} else {
			query, args, err = sqlx.In(`
				UPDATE staging_records SET
					change_state = ?,
					last_error = ?,
					last_updated_at = NOW()
				WHERE id IN (?)
			`, model.StateFailed, errMsg, ids)
		}
		if err != nil {
			return fmt.Errorf("failed to build outcome query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to mark outcome: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.Storage("failed to mark staging outcome", err)
	}
	return nil
}

func (r *stagingRepository) LastAdmissionDate(ctx context.Context) (string, error) {
	var watermark string
	query := `SELECT COALESCE(MAX(admission_date), '') FROM staging_records`
	if err := r.GetDB().GetContext(ctx, &watermark, query); err != nil {
		return "", apperrors.Storage("failed to read admission watermark", err)
	}
	return watermark, nil
}

func (r *stagingRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM staging_records WHERE change_state IN ($1, $2)`
	if err := r.GetDB().GetContext(ctx, &count, query, model.StateChanged, model.StateFailed); err != nil {
		return 0, apperrors.Storage("failed to count pending records", err)
	}
	return count, nil
}
