package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlink/hospital-sync/internal/model"
)

func fragment(patientID, episodeID, opID string, payload model.Payload) *model.Fragment {
	payload[model.FieldPatientID] = patientID
	payload[model.FieldEpisodeID] = episodeID
	if opID != "" {
		payload[model.FieldOperationID] = opID
	}
	f, err := model.FragmentFromPayload(payload)
	if err != nil {
		panic(err)
	}
	return f
}

func TestUpsertIsIdempotent(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	f := fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"})

	res, err := repo.Upsert(ctx, f)
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.True(t, res.Changed)

	// Same content again: ignored, still one pending record.
	res, err = repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}))
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.False(t, res.Changed)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestUpsertDetectsContentChange(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}))
	require.NoError(t, err)

	// Publish it, then stage a modified payload.
	records, err := repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, repo.MarkOutcome(ctx, []int64{records[0].ID}, model.OutcomeSuccess, ""))

	res, err := repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Wang"}))
	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.True(t, res.Changed)

	records, err = repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StateChanged, records[0].ChangeState)

	// The published payload survives as the comparison baseline.
	prev, err := records[0].PreviousPayload()
	require.NoError(t, err)
	assert.Equal(t, "Li", prev.Get(model.FieldDoctor))
	cur, err := records[0].CurrentPayload()
	require.NoError(t, err)
	assert.Equal(t, "Wang", cur.Get(model.FieldDoctor))
}

func TestDrainExcludesPublishedRecords(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, fragment("P2", "E2", "OP2", model.Payload{model.FieldDoctor: "Wang"}))
	require.NoError(t, err)

	records, err := repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, repo.MarkOutcome(ctx, []int64{records[0].ID}, model.OutcomeSuccess, ""))

	records, err = repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].PatientID)
}

func TestFailedRecordsStayPending(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}))
	require.NoError(t, err)

	records, err := repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, repo.MarkOutcome(ctx, []int64{records[0].ID}, model.OutcomeFailure, "platform unreachable"))

	records, err = repo.DrainPending(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StateFailed, records[0].ChangeState)
	assert.Equal(t, "platform unreachable", records[0].LastError.String)
}

func TestDrainOrderIsStableAcrossPasses(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	for _, op := range []string{"OP1", "OP2", "OP3", "OP4"} {
		_, err := repo.Upsert(ctx, fragment("P1", "E"+op, op, model.Payload{model.FieldDoctor: "Li"}))
		require.NoError(t, err)
	}

	first, err := repo.DrainPending(ctx, 2, 1)
	require.NoError(t, err)
	second, err := repo.DrainPending(ctx, 2, 1)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)

	// Publishing the first page shifts the remaining records into page one.
	require.NoError(t, repo.MarkOutcome(ctx, []int64{first[0].ID, first[1].ID}, model.OutcomeSuccess, ""))

	third, err := repo.DrainPending(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, third, 2)
	assert.NotEqual(t, first[0].ID, third[0].ID)
	assert.NotEqual(t, first[1].ID, third[1].ID)
}

func TestFailedRecordDrainsBehindOtherPending(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{model.FieldDoctor: "Li"}))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, fragment("P2", "E2", "OP2", model.Payload{model.FieldDoctor: "Wang"}))
	require.NoError(t, err)

	records, err := repo.DrainPending(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P1", records[0].PatientID)

	require.NoError(t, repo.MarkOutcome(ctx, []int64{records[0].ID}, model.OutcomeFailure, "platform unreachable"))

	// The failure stamp pushes the record behind the untouched pending row,
	// so a page-one drain now serves the other record.
	records, err = repo.DrainPending(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].PatientID)
}

func TestLastAdmissionDateWatermark(t *testing.T) {
	repo := NewStagingRepository()
	ctx := context.Background()

	watermark, err := repo.LastAdmissionDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", watermark)

	_, err = repo.Upsert(ctx, fragment("P1", "E1", "OP1", model.Payload{
		model.FieldAdmissionTime: "2026-08-10 08:00:00",
	}))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, fragment("P2", "E2", "OP2", model.Payload{
		model.FieldAdmissionTime: "2026-08-25 14:30:00",
	}))
	require.NoError(t, err)

	watermark, err = repo.LastAdmissionDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25 14:30:00", watermark)
}
