package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/repository"
	"github.com/medlink/hospital-sync/internal/repository/memory"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/pkg/errors"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/metrics"
)

type fakeRegistry struct {
	pages      [][]model.Payload
	watermarks []string
	err        error
}

func (f *fakeRegistry) FetchPage(ctx context.Context, pageSize, page int) ([]model.Payload, error) {
	return f.serve("", page)
}

func (f *fakeRegistry) FetchUpdatedSince(ctx context.Context, watermark string, pageSize, page int) ([]model.Payload, error) {
	return f.serve(watermark, page)
}

func (f *fakeRegistry) serve(watermark string, page int) ([]model.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.watermarks = append(f.watermarks, watermark)
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func newService(reg *fakeRegistry, pageSize int) (*Service, repository.StagingRepository) {
	staging := memory.NewStagingRepository()
	runs := runlog.NewRecorder(memory.NewRunHistoryRepository(), logger.NewLogger(nil))
	svc := NewService(reg, staging, runs, config.RegistryConfig{
		PageSize:       pageSize,
		InterPageDelay: time.Millisecond,
	}, logger.NewLogger(nil), metrics.NewUnregistered("test"))
	svc.sleep = func(time.Duration) {}
	return svc, staging
}

func rec(patientID, episodeID, opID string, extra model.Payload) model.Payload {
	p := model.Payload{
		model.FieldPatientID: patientID,
		model.FieldEpisodeID: episodeID,
	}
	if opID != "" {
		p[model.FieldOperationID] = opID
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestRunStagesAllPages(t *testing.T) {
	reg := &fakeRegistry{pages: [][]model.Payload{
		{
			rec("P1", "E1", "OP1", model.Payload{model.FieldTotal: "3"}),
			rec("P2", "E2", "OP2", nil),
		},
		{
			rec("P3", "E3", "OP3", nil),
		},
	}}

	svc, staging := newService(reg, 2)
	result := svc.Run(context.Background())

	assert.Equal(t, model.RunSuccess, result.Status)
	assert.Equal(t, 3, result.Counts["processed"])
	assert.Equal(t, 3, result.Counts["new"])
	assert.Equal(t, 0, result.Counts["failed"])

	pending, err := staging.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestRunUsesAdmissionWatermark(t *testing.T) {
	reg := &fakeRegistry{pages: [][]model.Payload{
		{rec("P1", "E1", "OP1", model.Payload{model.FieldAdmissionTime: "2026-08-10 08:00:00"})},
	}}

	svc, staging := newService(reg, 10)
	result := svc.Run(context.Background())
	require.Equal(t, model.RunSuccess, result.Status)
	// First run: empty store, full fetch.
	assert.Equal(t, []string{""}, reg.watermarks)

	// Second run resumes from the staged admission date.
	reg.pages = [][]model.Payload{nil}
	reg.watermarks = nil
	svc2 := NewService(reg, staging, runlog.NewRecorder(memory.NewRunHistoryRepository(), logger.NewLogger(nil)),
		config.RegistryConfig{PageSize: 10}, logger.NewLogger(nil), metrics.NewUnregistered("test2"))
	svc2.sleep = func(time.Duration) {}
	result = svc2.Run(context.Background())
	assert.Equal(t, model.RunIdle, result.Status)
	assert.Equal(t, []string{"2026-08-10 08:00:00"}, reg.watermarks)
}

func TestRunSecondIdenticalPassIgnoresEverything(t *testing.T) {
	page := []model.Payload{
		rec("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}),
	}
	reg := &fakeRegistry{pages: [][]model.Payload{page}}

	svc, _ := newService(reg, 10)
	first := svc.Run(context.Background())
	require.Equal(t, model.RunSuccess, first.Status)

	reg.pages = [][]model.Payload{{
		rec("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}),
	}}
	second := svc.Run(context.Background())
	assert.Equal(t, model.RunSuccess, second.Status)
	assert.Equal(t, 1, second.Counts["ignored"])
	assert.Equal(t, 0, second.Counts["new"])
	assert.Equal(t, 0, second.Counts["updated"])
}

func TestRunMalformedRecordDoesNotStopPage(t *testing.T) {
	reg := &fakeRegistry{pages: [][]model.Payload{
		{
			model.Payload{model.FieldEpisodeID: "E1"}, // missing patient id
			rec("P2", "E2", "OP2", nil),
		},
	}}

	svc, _ := newService(reg, 10)
	result := svc.Run(context.Background())

	assert.Equal(t, model.RunError, result.Status)
	assert.Equal(t, 2, result.Counts["processed"])
	assert.Equal(t, 1, result.Counts["failed"])
	assert.Equal(t, 1, result.Counts["new"])
}

func TestRunRegistryFailureEndsRun(t *testing.T) {
	reg := &fakeRegistry{err: errors.Communication("registry down", nil)}

	svc, _ := newService(reg, 10)
	result := svc.Run(context.Background())

	assert.Equal(t, model.RunError, result.Status)
	assert.Contains(t, result.Message, "registry down")
}

func TestRunEmptyRegistryIsIdle(t *testing.T) {
	reg := &fakeRegistry{pages: [][]model.Payload{nil}}

	svc, _ := newService(reg, 10)
	result := svc.Run(context.Background())

	assert.Equal(t, model.RunIdle, result.Status)
}
