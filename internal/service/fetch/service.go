// Package fetch implements the fetch-and-stage pipeline: paginated retrieval
// of source records from the registry and change-detecting upserts into the
// staging store.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/registry"
	"github.com/medlink/hospital-sync/internal/repository"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/metrics"
)

// RegistryClient is the slice of the registry client the pipeline consumes.
type RegistryClient interface {
	FetchPage(ctx context.Context, pageSize, page int) ([]model.Payload, error)
	FetchUpdatedSince(ctx context.Context, watermark string, pageSize, page int) ([]model.Payload, error)
}

// Service runs fetch-and-stage passes.
type Service struct {
	registry RegistryClient
	staging  repository.StagingRepository
	runs     *runlog.Recorder
	cfg      config.RegistryConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics

	// sleep is swapped out in tests; production uses time.Sleep.
	sleep func(time.Duration)
}

func NewService(
	reg RegistryClient,
	staging repository.StagingRepository,
	runs *runlog.Recorder,
	cfg config.RegistryConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		registry: reg,
		staging:  staging,
		runs:     runs,
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		sleep:    time.Sleep,
	}
}

// Run executes one fetch-and-stage pass. A registry failure ends the run with
// ERROR; a failure staging one fragment is logged and counted but never stops
// the page.
func (s *Service) Run(ctx context.Context) model.RunResult {
	run := s.runs.Start(ctx, model.RunTypeFetch)

	watermark, err := s.staging.LastAdmissionDate(ctx)
	if err != nil {
		msg := fmt.Sprintf("failed to read fetch watermark: %v", err)
		run.Finish(ctx, model.RunError, msg)
		s.metrics.FetchRuns.WithLabelValues(string(model.RunError)).Inc()
		return model.RunResult{Status: model.RunError, Message: msg}
	}
	fromDate := watermark
	if fromDate == "" {
		fromDate = "the beginning"
	}
	s.logger.Info("fetch run started", "from", fromDate)

	var counts model.FetchCounts
	totalExpected := 0
	page := 1

	for {
		if ctx.Err() != nil {
			break
		}

		pageStart := time.Now()
		var records []model.Payload
		if watermark == "" {
			records, err = s.registry.FetchPage(ctx, s.cfg.PageSize, page)
		} else {
			records, err = s.registry.FetchUpdatedSince(ctx, watermark, s.cfg.PageSize, page)
		}
		if err != nil {
			msg := fmt.Sprintf("%s. %s", counts.Message(fromDate, totalExpected), err)
			run.AppendLog(ctx, fmt.Sprintf("page %d: %v", page, err))
			run.Finish(ctx, model.RunError, msg)
			s.metrics.FetchRuns.WithLabelValues(string(model.RunError)).Inc()
			return model.RunResult{Status: model.RunError, Message: msg, Counts: counts.Map()}
		}

		if page == 1 {
			totalExpected = registry.CountTotalExpected(records)
		}

		for _, record := range records {
			s.stageOne(ctx, run, record, &counts)
		}
		s.metrics.FetchPageLatency.Observe(time.Since(pageStart).Seconds())

		run.SetProgress(ctx, counts.Message(fromDate, totalExpected))

		if len(records) < s.cfg.PageSize {
			break
		}
		if s.cfg.MaxRecords > 0 && counts.Processed >= s.cfg.MaxRecords {
			break
		}

		page++
		s.sleep(s.cfg.InterPageDelay)
	}

	status := counts.Status()
	msg := counts.Message(fromDate, totalExpected)
	run.Finish(ctx, status, msg)
	s.metrics.FetchRuns.WithLabelValues(string(status)).Inc()
	s.logger.Info("fetch run finished", "status", string(status), "message", msg)

	return model.RunResult{Status: status, Message: msg, Counts: counts.Map()}
}

func (s *Service) stageOne(ctx context.Context, run *runlog.Run, record model.Payload, counts *model.FetchCounts) {
	counts.Processed++

	fragment, err := model.FragmentFromPayload(record)
	if err != nil {
		counts.Failed++
		s.metrics.FragmentsStaged.WithLabelValues("failed").Inc()
		run.AppendLog(ctx, fmt.Sprintf("invalid record: %v", err))
		return
	}

	result, err := s.staging.Upsert(ctx, fragment)
	if err != nil {
		counts.Failed++
		s.metrics.FragmentsStaged.WithLabelValues("failed").Inc()
		run.AppendLog(ctx, fmt.Sprintf("%s: staging failed: %v", fragment, err))
		s.logger.Error(err, "failed to stage fragment", "fragment", fragment.String())
		return
	}

	switch {
	case result.IsNew:
		counts.New++
		s.metrics.FragmentsStaged.WithLabelValues("new").Inc()
	case result.Changed:
		counts.Updated++
		s.metrics.FragmentsStaged.WithLabelValues("updated").Inc()
	default:
		counts.Ignored++
		s.metrics.FragmentsStaged.WithLabelValues("ignored").Inc()
	}
}
