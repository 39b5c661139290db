package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
)

type runHistoryRepository struct {
	BaseRepository
}

func NewRunHistoryRepository(base BaseRepository) repository.RunHistoryRepository {
	return &runHistoryRepository{base}
}

func (r *runHistoryRepository) Create(ctx context.Context, run *model.RunHistory) error {
	query := `
		INSERT INTO run_history (
			id, run_type, status, message, log, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		run.ID,
		run.RunType,
		run.Status,
		run.Message,
		run.Log,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run history: %w", err)
	}
	return nil
}

func (r *runHistoryRepository) Update(ctx context.Context, run *model.RunHistory) error {
	query := `
		UPDATE run_history SET
			status = $1,
			message = $2,
			log = $3,
			finished_at = $4
		WHERE id = $5
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		run.Status,
		run.Message,
		run.Log,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run history not found")
	}
	return nil
}

func (r *runHistoryRepository) Get(ctx context.Context, id uuid.UUID) (*model.RunHistory, error) {
	query := `SELECT * FROM run_history WHERE id = $1`
	var run model.RunHistory
	if err := r.GetDB().GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	return &run, nil
}

func (r *runHistoryRepository) List(ctx context.Context, runType string, limit int) ([]*model.RunHistory, error) {
	query := `SELECT * FROM run_history`
	args := []interface{}{}

	if runType != "" {
		query += ` WHERE run_type = $1`
		args = append(args, runType)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var runs []*model.RunHistory
	if err := r.GetDB().SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	return runs, nil
}
