package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
)

type runHistoryRepository struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*model.RunHistory
}

// NewRunHistoryRepository returns an empty in-memory run history store.
func NewRunHistoryRepository() repository.RunHistoryRepository {
	return &runHistoryRepository{runs: make(map[uuid.UUID]*model.RunHistory)}
}

func (r *runHistoryRepository) Create(ctx context.Context, run *model.RunHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *runHistoryRepository) Update(ctx context.Context, run *model.RunHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return fmt.Errorf("run history not found")
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *runHistoryRepository) Get(ctx context.Context, id uuid.UUID) (*model.RunHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run history not found")
	}
	cp := *run
	return &cp, nil
}

func (r *runHistoryRepository) List(ctx context.Context, runType string, limit int) ([]*model.RunHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.RunHistory
	for _, run := range r.runs {
		if runType != "" && run.RunType != runType {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
