// Package reconcile implements the reconcile-and-publish pipeline: draining
// pending staging records, consolidating them per episode and projecting each
// episode onto the care platform.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/medlink/hospital-sync/internal/aggregator"
	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/metrics"
)

// Service runs reconcile-and-publish passes.
type Service struct {
	staging   repository.StagingRepository
	publisher *Publisher
	runs      *runlog.Recorder
	cfg       config.SyncConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	staging repository.StagingRepository,
	publisher *Publisher,
	runs *runlog.Recorder,
	cfg config.SyncConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		staging:   staging,
		publisher: publisher,
		runs:      runs,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
	}
}

type episodeGroup struct {
	key     string
	records []*model.StagingRecord
}

// Run executes one reconcile pass. Subscription resolution failure is fatal
// for the run; any later failure is isolated to its episode.
func (s *Service) Run(ctx context.Context) model.RunResult {
	run := s.runs.Start(ctx, model.RunTypeReconcile)

	if err := s.publisher.Init(ctx); err != nil {
		msg := fmt.Sprintf("failed to initialize publisher: %v", err)
		run.Finish(ctx, model.RunError, msg)
		s.metrics.ReconcileRuns.WithLabelValues(string(model.RunError)).Inc()
		s.logger.Error(err, "reconcile run aborted before processing")
		return model.RunResult{Status: model.RunError, Message: msg}
	}

	totalExpected, err := s.staging.CountPending(ctx)
	if err != nil {
		msg := fmt.Sprintf("failed to count pending records: %v", err)
		run.Finish(ctx, model.RunError, msg)
		s.metrics.ReconcileRuns.WithLabelValues(string(model.RunError)).Inc()
		return model.RunResult{Status: model.RunError, Message: msg}
	}
	s.logger.Info("reconcile run started", "pending", totalExpected)

	var counts model.PublishCounts
	// Records that failed this pass stay pending, so the drain keeps serving
	// them on page one. The seen set is what makes the loop terminate.
	seen := make(map[int64]bool)

	for ctx.Err() == nil {
		page, err := s.staging.DrainPending(ctx, s.cfg.ReconcilePageSize, 1)
		if err != nil {
			msg := fmt.Sprintf("%s. Drain failed: %v", counts.Message(totalExpected), err)
			run.AppendLog(ctx, fmt.Sprintf("drain failed: %v", err))
			run.Finish(ctx, model.RunError, msg)
			s.metrics.ReconcileRuns.WithLabelValues(string(model.RunError)).Inc()
			return model.RunResult{Status: model.RunError, Message: msg, Counts: counts.Map()}
		}

		groups := s.groupUnseen(page, seen)
		if len(groups) == 0 {
			break
		}

		for _, group := range groups {
			if ctx.Err() != nil {
				break
			}
			s.publishGroup(ctx, run, group, &counts)
		}

		run.SetProgress(ctx, counts.Message(totalExpected))
	}

	if pending, err := s.staging.CountPending(ctx); err == nil {
		s.metrics.PendingChanged.Set(float64(pending))
	}

	status := counts.Status()
	msg := counts.Message(totalExpected)
	run.Finish(ctx, status, msg)
	s.metrics.ReconcileRuns.WithLabelValues(string(status)).Inc()
	s.logger.Info("reconcile run finished", "status", string(status), "message", msg)

	return model.RunResult{Status: status, Message: msg, Counts: counts.Map()}
}

// groupUnseen drops records already attempted this pass and groups the rest
// by episode, preserving drain order.
func (s *Service) groupUnseen(page []*model.StagingRecord, seen map[int64]bool) []*episodeGroup {
	var groups []*episodeGroup
	index := make(map[string]*episodeGroup)

	for _, record := range page {
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true

		key := record.EpisodeKey()
		group, ok := index[key]
		if !ok {
			group = &episodeGroup{key: key}
			index[key] = group
			groups = append(groups, group)
		}
		group.records = append(group.records, record)
	}
	return groups
}

// publishGroup consolidates and publishes one episode; all of the group's
// fragments share the outcome.
func (s *Service) publishGroup(ctx context.Context, run *runlog.Run, group *episodeGroup, counts *model.PublishCounts) {
	counts.Processed += len(group.records)

	ids := make([]int64, len(group.records))
	for i, record := range group.records {
		ids[i] = record.ID
	}

	fail := func(err error) {
		counts.Failed += len(group.records)
		s.metrics.EpisodesFailed.Inc()
		run.AppendLog(ctx, fmt.Sprintf("episode %s: %v", group.key, err))
		s.logger.Error(err, "failed to publish episode", "episode", group.key)
		if markErr := s.staging.MarkOutcome(ctx, ids, model.OutcomeFailure, err.Error()); markErr != nil {
			s.logger.Error(markErr, "failed to mark episode outcome", "episode", group.key)
		}
	}

	episode, err := aggregator.Consolidate(group.records)
	if err != nil {
		fail(err)
		return
	}

	start := time.Now()
	if err := s.publisher.Publish(ctx, episode); err != nil {
		fail(err)
		return
	}
	s.metrics.PublishLatency.Observe(time.Since(start).Seconds())

	if err := s.staging.MarkOutcome(ctx, ids, model.OutcomeSuccess, ""); err != nil {
		// The platform holds the data but the store still thinks it is
		// pending; the next pass republishes idempotently.
		counts.Failed += len(group.records)
		s.metrics.EpisodesFailed.Inc()
		run.AppendLog(ctx, fmt.Sprintf("episode %s: outcome not recorded: %v", group.key, err))
		return
	}

	counts.Success += len(group.records)
	s.metrics.EpisodesPublished.Inc()
}
