// Package worker drives the sync pipelines on fixed intervals.
package worker

import (
	"context"
	"time"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/notify"
	"github.com/medlink/hospital-sync/pkg/logger"
)

// Runner is one pipeline the scheduler can trigger.
type Runner interface {
	Run(ctx context.Context) model.RunResult
}

// Scheduler alternates fetch and reconcile runs. Runs execute on a single
// goroutine, so the two pipelines never overlap.
type Scheduler struct {
	fetch     Runner
	reconcile Runner
	mailer    *notify.Mailer
	cfg       config.SyncConfig
	logger    *logger.Logger
}

func NewScheduler(fetch, reconcile Runner, mailer *notify.Mailer, cfg config.SyncConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		fetch:     fetch,
		reconcile: reconcile,
		mailer:    mailer,
		cfg:       cfg,
		logger:    log,
	}
}

// Start blocks until ctx is cancelled. Both pipelines run once immediately,
// then on their configured intervals.
func (s *Scheduler) Start(ctx context.Context) {
	s.runOnce(ctx, model.RunTypeFetch, s.fetch)
	s.runOnce(ctx, model.RunTypeReconcile, s.reconcile)

	fetchTicker := time.NewTicker(s.cfg.FetchInterval)
	defer fetchTicker.Stop()
	reconcileTicker := time.NewTicker(s.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-fetchTicker.C:
			s.runOnce(ctx, model.RunTypeFetch, s.fetch)
		case <-reconcileTicker.C:
			s.runOnce(ctx, model.RunTypeReconcile, s.reconcile)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, runType string, runner Runner) {
	if ctx.Err() != nil {
		return
	}

	result := runner.Run(ctx)
	s.logger.Info("scheduled run finished",
		"run_type", runType,
		"status", string(result.Status),
		"message", result.Message,
	)

	if result.Status == model.RunError && s.mailer != nil {
		s.mailer.AlertRunFailure(runType, result)
	}
}
