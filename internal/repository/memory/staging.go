// Package memory holds in-memory repository implementations used by tests
// and by the pipelines' unit fixtures. Semantics mirror the postgres
// implementations exactly, including drain ordering and outcome transitions.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
)

type stagingRepository struct {
	mu     sync.Mutex
	nextID int64
	seq    int64 // monotonic update order, stands in for last_updated_at ties
	byKey  map[string]*stagingRow
}

type stagingRow struct {
	record model.StagingRecord
	seq    int64
}

// NewStagingRepository returns an empty in-memory staging store.
func NewStagingRepository() repository.StagingRepository {
	return &stagingRepository{byKey: make(map[string]*stagingRow)}
}

func (r *stagingRepository) Upsert(ctx context.Context, f *model.Fragment) (model.UpsertResult, error) {
	payload, err := f.Payload.Canonical()
	if err != nil {
		return model.UpsertResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	key := f.IdentityKey()

	row, ok := r.byKey[key]
	if !ok {
		r.nextID++
		r.seq++
		r.byKey[key] = &stagingRow{
			record: model.StagingRecord{
				ID:            r.nextID,
				PatientID:     f.PatientID,
				EpisodeID:     f.EpisodeID,
				OperationID:   f.OperationID,
				AdmissionDate: f.AdmissionTime,
				SourceUpdate:  f.SourceUpdate,
				Payload:       payload,
				ChangeState:   model.StateChanged,
				CreatedAt:     now,
				LastUpdatedAt: now,
			},
			seq: r.seq,
		}
		return model.UpsertResult{IsNew: true, Changed: true}, nil
	}

	if row.record.Payload == payload {
		return model.UpsertResult{}, nil
	}

	r.seq++
	row.seq = r.seq
	row.record.Payload = payload
	row.record.AdmissionDate = f.AdmissionTime
	row.record.SourceUpdate = f.SourceUpdate
	row.record.ChangeState = model.StateChanged
	row.record.LastError = sql.NullString{}
	row.record.LastUpdatedAt = now
	return model.UpsertResult{Changed: true}, nil
}

func (r *stagingRepository) DrainPending(ctx context.Context, pageSize, page int) ([]*model.StagingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*stagingRow
	for _, row := range r.byKey {
		if row.record.ChangeState.Pending() {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].seq != rows[j].seq {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].record.ID < rows[j].record.ID
	})

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if pageSize > 0 && len(rows) > pageSize {
		rows = rows[:pageSize]
	}
	out := make([]*model.StagingRecord, len(rows))
	for i, row := range rows {
		rec := row.record
		out[i] = &rec
	}
	return out, nil
}

func (r *stagingRepository) MarkOutcome(ctx context.Context, ids []int64, outcome model.Outcome, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var marked []*stagingRow
	for _, row := range r.byKey {
		if wanted[row.record.ID] {
			marked = append(marked, row)
		}
	}
	// Postgres stamps one NOW() for the whole statement and drains ties by
	// id; seqs assigned in id order reproduce that.
	sort.Slice(marked, func(i, j int) bool { return marked[i].record.ID < marked[j].record.ID })

	for _, row := range marked {
		if outcome == model.OutcomeSuccess {
			row.record.ChangeState = model.StateUnchanged
			row.record.PrevPayload = sql.NullString{String: row.record.Payload, Valid: true}
			row.record.LastError = sql.NullString{}
		} else {
			row.record.ChangeState = model.StateFailed
			row.record.LastError = sql.NullString{String: errMsg, Valid: true}
		}
		// The stamp moves a failed record behind the rest of the pending set.
		r.seq++
		row.seq = r.seq
		row.record.LastUpdatedAt = time.Now()
	}
	return nil
}

func (r *stagingRepository) LastAdmissionDate(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var max string
	for _, row := range r.byKey {
		if row.record.AdmissionDate > max {
			max = row.record.AdmissionDate
		}
	}
	return max, nil
}

func (r *stagingRepository) CountPending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, row := range r.byKey {
		if row.record.ChangeState.Pending() {
			count++
		}
	}
	return count, nil
}
