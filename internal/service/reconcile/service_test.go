package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/notify"
	"github.com/medlink/hospital-sync/internal/platform"
	"github.com/medlink/hospital-sync/internal/repository"
	"github.com/medlink/hospital-sync/internal/repository/memory"
	"github.com/medlink/hospital-sync/internal/service/runlog"
	"github.com/medlink/hospital-sync/pkg/errors"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/messaging"
	"github.com/medlink/hospital-sync/pkg/metrics"
)

type fakeBroker struct {
	published []messaging.Message
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBroker) Close() error { return nil }

type fixture struct {
	staging repository.StagingRepository
	fake    *platform.Fake
	broker  *fakeBroker
	svc     *Service
}

func newFixture(t *testing.T, mutate func(cfg *config.SyncConfig)) *fixture {
	t.Helper()

	fake := platform.NewFake()
	fake.AddSubscription("ACUTE", "T1")
	fake.AddSubscription("FOLLOWUP", "T1")

	cfg := config.SyncConfig{
		ReconcilePageSize:       100,
		MaxProceduresPerEpisode: 10,
		AcuteProgramCode:        "ACUTE",
		FollowUpProgramCode:     "FOLLOWUP",
		TeamCode:                "T1",
		RecentDischargeWindow:   7 * 24 * time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	log := logger.NewLogger(nil)
	broker := &fakeBroker{}
	staging := memory.NewStagingRepository()
	publisher := NewPublisher(fake, notify.NewNotifier(broker, "episode-changes", log), cfg, log)
	svc := NewService(staging, publisher,
		runlog.NewRecorder(memory.NewRunHistoryRepository(), log),
		cfg, log, metrics.NewUnregistered("test"))

	return &fixture{staging: staging, fake: fake, broker: broker, svc: svc}
}

func (f *fixture) stage(t *testing.T, payload model.Payload) {
	t.Helper()
	frag, err := model.FragmentFromPayload(payload)
	require.NoError(t, err)
	_, err = f.staging.Upsert(context.Background(), frag)
	require.NoError(t, err)
}

func (f *fixture) importForm(t *testing.T, episodeID string) *platform.Form {
	t.Helper()
	for _, form := range f.fake.Forms {
		if q := form.FindQuestion(model.CodeEpisodeID); q != nil && q.Value == episodeID {
			return form
		}
	}
	return nil
}

func episodePayload(opID string, extra model.Payload) model.Payload {
	p := model.Payload{
		model.FieldPatientID:     "P1",
		model.FieldEpisodeID:     "E1",
		model.FieldName:          "Zhang San",
		model.FieldSex:           "男",
		model.FieldAdmissionTime: "2026-08-10 08:00:00",
		model.FieldDoctor:        "Li/D100",
	}
	if opID != "" {
		p[model.FieldOperationID] = opID
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestFirstImportCreatesCaseAdmissionAndForm(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldOperationName: "appendectomy",
		model.FieldOperationDate: "2026-08-11 09:00:00",
	}))
	f.stage(t, episodePayload("OP2", model.Payload{
		model.FieldOperationName: "cholecystectomy",
		model.FieldOperationDate: "2026-08-12 09:00:00",
	}))

	result := f.svc.Run(ctx)
	require.Equal(t, model.RunSuccess, result.Status)
	assert.Equal(t, 2, result.Counts["processed"])
	assert.Equal(t, 2, result.Counts["success"])

	// One case, identified by the hospital patient number.
	require.Len(t, f.fake.Cases, 1)
	for _, c := range f.fake.Cases {
		assert.Equal(t, "Zhang San", c.FullName)
		assert.Equal(t, "M", c.Gender)
		assert.Equal(t, "P1", c.Contact.Find(CaseIdentifierName))
	}

	// Acute admission plus the follow-up admission for the active episode.
	assert.Len(t, f.fake.Admissions, 2)

	form := f.importForm(t, "E1")
	require.NotNil(t, form)
	assert.Equal(t, "P1", form.FindQuestion(model.CodePatientID).Value)
	assert.Equal(t, model.SourceSystemValue, form.FindQuestion(model.CodeSource).Value)
	assert.Equal(t, "Li", form.FindRowQuestion(model.CodeDoctor, 1).Value)
	assert.Equal(t, "D100", form.FindRowQuestion(model.CodeDoctorCode, 1).Value)

	// Both procedures landed on their own rows.
	assert.Equal(t, "appendectomy", form.FindRowQuestion(model.CodeOperationName, 1).Value)
	assert.Equal(t, "cholecystectomy", form.FindRowQuestion(model.CodeOperationName, 2).Value)

	// Follow-up admission linked on the form.
	assert.NotEmpty(t, form.FindQuestion(model.CodeFollowUpAdmission).Value)

	// First import of a brand-new follow-up admission must not notify.
	assert.Empty(t, f.broker.published)

	pending, err := f.staging.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestNationalitySetOnCaseContact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", model.Payload{model.FieldNationality: "CN"}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	require.Len(t, f.fake.Cases, 1)
	for _, c := range f.fake.Cases {
		assert.Equal(t, "CN", c.Contact.Nation)
	}

	// A corrected nationality flows through the contact update path.
	f.stage(t, episodePayload("OP1", model.Payload{model.FieldNationality: "SG"}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	require.Len(t, f.fake.Cases, 1)
	for _, c := range f.fake.Cases {
		assert.Equal(t, "SG", c.Contact.Nation)
	}
}

func TestSecondPassWithChangeNotifies(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", model.Payload{model.FieldOperationName: "appendectomy"}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)
	require.Empty(t, f.broker.published)

	// Same episode, doctor changed.
	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldOperationName: "appendectomy",
		model.FieldDoctor:        "Wang/D200",
	}))
	result := f.svc.Run(ctx)
	require.Equal(t, model.RunSuccess, result.Status)

	require.Len(t, f.broker.published, 1)
	event := f.broker.published[0].Payload.(notify.ChangeEvent)
	assert.Equal(t, "P1", event.PatientID)
	assert.Equal(t, "E1", event.EpisodeID)
	assert.Contains(t, event.Summary, "patient information updated")

	// No duplicate case or admission was created.
	assert.Len(t, f.fake.Cases, 1)
	assert.Len(t, f.fake.Admissions, 2)
}

func TestIdenticalSecondPassIsIdle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", nil))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	// Nothing new staged: the pending set is empty.
	result := f.svc.Run(ctx)
	assert.Equal(t, model.RunIdle, result.Status)
	assert.Empty(t, f.broker.published)
}

func TestEpisodeFailureIsIsolatedAndRetried(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", nil))
	f.stage(t, model.Payload{
		model.FieldPatientID:     "P2",
		model.FieldEpisodeID:     "E2",
		model.FieldOperationID:   "OP9",
		model.FieldName:          "Li Si",
		model.FieldAdmissionTime: "2026-08-15 10:00:00",
	})

	// First episode's case creation fails; second must still publish.
	f.fake.Fail["CreateCase"] = errors.RemoteAPI("CASE.INVALID", "rejected")
	result := f.svc.Run(ctx)

	assert.Equal(t, model.RunError, result.Status)
	assert.Equal(t, 1, result.Counts["failed"])
	assert.Equal(t, 1, result.Counts["success"])

	// The failed episode stays pending for the next pass.
	pending, err := f.staging.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// Clearing the fault lets the retry succeed.
	delete(f.fake.Fail, "CreateCase")
	result = f.svc.Run(ctx)
	assert.Equal(t, model.RunSuccess, result.Status)

	pending, err = f.staging.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestFailingEpisodeDoesNotStarveLaterPages(t *testing.T) {
	f := newFixture(t, func(cfg *config.SyncConfig) {
		cfg.ReconcilePageSize = 1
	})
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", nil))
	f.stage(t, model.Payload{
		model.FieldPatientID:     "P2",
		model.FieldEpisodeID:     "E2",
		model.FieldOperationID:   "OP9",
		model.FieldName:          "Li Si",
		model.FieldAdmissionTime: "2026-08-15 10:00:00",
	})

	// The first episode fills the one-record drain page and fails; the
	// failure stamp must move it behind the second episode so the next
	// page-one drain reaches P2 within the same run.
	f.fake.Fail["CreateCase"] = errors.RemoteAPI("CASE.INVALID", "rejected")
	result := f.svc.Run(ctx)

	assert.Equal(t, model.RunError, result.Status)
	assert.Equal(t, 2, result.Counts["processed"])
	assert.Equal(t, 2, result.Counts["failed"])
}

func TestSubscriptionFailureAbortsRun(t *testing.T) {
	f := newFixture(t, func(cfg *config.SyncConfig) {
		cfg.AcuteProgramCode = "MISSING"
	})
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", nil))
	result := f.svc.Run(ctx)

	assert.Equal(t, model.RunError, result.Status)
	assert.Contains(t, result.Message, "failed to initialize")

	// Nothing was attempted: the record is still pending, untouched.
	pending, err := f.staging.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Empty(t, f.fake.Cases)
}

func TestDischargeTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", nil))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	var acute *platform.Admission
	for _, a := range f.fake.Admissions {
		if a.SubscriptionID == f.fake.Subs[0].ID {
			acute = a
		}
	}
	require.NotNil(t, acute)
	require.Equal(t, platform.AdmissionActive, acute.Status)

	// Discharge arrives.
	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldDischargeTime:   "2026-08-20 10:00:00",
		model.FieldDischargeStatus: "recovered",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)
	assert.Equal(t, platform.AdmissionDischarged, f.fake.Admissions[acute.ID].Status)
	assert.Equal(t, "2026-08-20 10:00:00", f.fake.Admissions[acute.ID].DischargeDate)

	// A corrected discharge date updates without re-discharging.
	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldDischargeTime:   "2026-08-20 12:30:00",
		model.FieldDischargeStatus: "recovered",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)
	assert.Equal(t, platform.AdmissionDischarged, f.fake.Admissions[acute.ID].Status)
	assert.Equal(t, "2026-08-20 12:30:00", f.fake.Admissions[acute.ID].DischargeDate)
}

func TestHistoricalDischargeClosesAdmission(t *testing.T) {
	f := newFixture(t, func(cfg *config.SyncConfig) {
		cfg.DischargeDateThreshold = "2026-01-01 00:00:00"
	})
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldAdmissionTime: "2019-03-01 08:00:00",
		model.FieldDischargeTime: "2019-03-10 10:00:00",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	// Discharged long before the cutoff: closed on import.
	var acute *platform.Admission
	for _, a := range f.fake.Admissions {
		if a.SubscriptionID == f.fake.Subs[0].ID {
			acute = a
		}
	}
	require.NotNil(t, acute)
	assert.Equal(t, platform.AdmissionDischarged, acute.Status)
	assert.Equal(t, "2019-03-10 10:00:00", acute.DischargeDate)

	// A corrected date still below the cutoff is propagated regardless.
	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldAdmissionTime: "2019-03-01 08:00:00",
		model.FieldDischargeTime: "2019-03-12 09:00:00",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)
	assert.Equal(t, platform.AdmissionDischarged, f.fake.Admissions[acute.ID].Status)
	assert.Equal(t, "2019-03-12 09:00:00", f.fake.Admissions[acute.ID].DischargeDate)
}

func TestRecentDischargeLeavesAdmissionActive(t *testing.T) {
	f := newFixture(t, func(cfg *config.SyncConfig) {
		cfg.DischargeDateThreshold = "2020-01-01 00:00:00"
	})
	ctx := context.Background()

	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldAdmissionTime: "2025-05-20 08:00:00",
		model.FieldDischargeTime: "2025-06-01 10:00:00",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	// The discharge is recorded on the form; the admission stays with the
	// care team, which runs the discharge itself.
	form := f.importForm(t, "E1")
	require.NotNil(t, form)
	assert.Equal(t, "2025-06-01 10:00:00", form.FindRowQuestion(model.CodeDischargeTime, 1).Value)
	for _, a := range f.fake.Admissions {
		assert.NotEqual(t, platform.AdmissionDischarged, a.Status)
	}
}

func TestOldDischargeSkipsFollowUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Discharged long before the recent-discharge window: the acute
	// admission is closed but no follow-up enrollment happens.
	f.stage(t, episodePayload("OP1", model.Payload{
		model.FieldDischargeTime: "2025-01-10 10:00:00",
	}))
	require.Equal(t, model.RunSuccess, f.svc.Run(ctx).Status)

	require.Len(t, f.fake.Admissions, 1)
	for _, a := range f.fake.Admissions {
		assert.Equal(t, f.fake.Subs[0].ID, a.SubscriptionID)
		assert.Equal(t, platform.AdmissionDischarged, a.Status)
	}

	form := f.importForm(t, "E1")
	require.NotNil(t, form)
	assert.Nil(t, form.FindQuestion(model.CodeFollowUpAdmission))
	assert.Empty(t, f.broker.published)
}
