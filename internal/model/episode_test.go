package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySnapshotDoesNotTrack(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID: "P1",
		FieldEpisodeID: "E1",
		FieldName:      "Zhang",
		FieldPhone:     "13900001111",
	})

	assert.False(t, e.HasChanges())
	assert.Empty(t, e.ChangeSummary())
	assert.Equal(t, "Zhang", e.Name)
}

func TestApplyUpdateTracksPriorValues(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID: "P1",
		FieldEpisodeID: "E1",
		FieldName:      "Zhang",
		FieldDoctor:    "Li",
	})
	e.ApplyUpdate(Payload{
		FieldPatientID: "P1",
		FieldEpisodeID: "E1",
		FieldName:      "Zhang",
		FieldDoctor:    "Wang",
	})

	require.True(t, e.HasChanges())
	prev, ok := e.PreviousValue(FieldDoctor)
	require.True(t, ok)
	assert.Equal(t, "Li", prev)
	_, nameChanged := e.PreviousValue(FieldName)
	assert.False(t, nameChanged)
	assert.Contains(t, e.ChangeSummary(), "patient information updated (doctor)")
}

func TestApplyUpdateFirstChangeWins(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldDoctor: "Li"})
	e.ApplyUpdate(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldDoctor: "Wang"})
	e.ApplyUpdate(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldDoctor: "Zhao"})

	prev, ok := e.PreviousValue(FieldDoctor)
	require.True(t, ok)
	assert.Equal(t, "Li", prev)
	assert.Equal(t, "Zhao", e.Doctor)
}

func TestNewProcedureReportedAsAddition(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationID:   "OP1",
		FieldOperationName: "appendectomy",
	})
	e.ApplyUpdate(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationID:   "OP1",
		FieldOperationName: "appendectomy",
	})
	e.ApplyUpdate(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationID:   "OP2",
		FieldOperationName: "cholecystectomy",
	})

	require.True(t, e.HasChanges())
	summary := e.ChangeSummary()
	assert.Contains(t, summary, "new procedure added (OP2)")
	assert.NotContains(t, summary, "procedure updated")

	op2 := e.Procedure("OP2")
	require.NotNil(t, op2)
	assert.True(t, op2.IsNew())
	assert.False(t, op2.HasChanges())
}

func TestExistingProcedureReportedAsUpdate(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationID:   "OP1",
		FieldOperationName: "appendectomy",
		FieldOperationDate: "2026-08-01 09:00:00",
	})
	e.ApplyUpdate(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationID:   "OP1",
		FieldOperationName: "laparoscopic appendectomy",
		FieldOperationDate: "2026-08-01 09:00:00",
	})

	summary := e.ChangeSummary()
	assert.Contains(t, summary, "procedure updated (OP1: operationName)")
	assert.NotContains(t, summary, "new procedure added")
}

func TestDelimitedProceduresZipPositionally(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID:     "P1",
		FieldEpisodeID:     "E1",
		FieldOperationCode: "A01, B02, C03",
		FieldOperationName: "first, second", // shorter list, third entry partial
	})

	procs := e.Procedures()
	require.Len(t, procs, 3)
	assert.Equal(t, "1", procs[0].Key)
	assert.Equal(t, "A01", procs[0].Code)
	assert.Equal(t, "first", procs[0].Name)
	assert.Equal(t, "B02", procs[1].Code)
	assert.Equal(t, "second", procs[1].Name)
	assert.Equal(t, "C03", procs[2].Code)
	assert.Equal(t, "", procs[2].Name)
}

func TestDiagnosesZipWithLengthMismatch(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{
		FieldPatientID:           "P1",
		FieldEpisodeID:           "E1",
		FieldOtherDiagnosisCodes: "I10,E11.9,J45",
		FieldOtherDiagnoses:      "hypertension,diabetes",
	})

	diags := e.Diagnoses()
	require.Len(t, diags, 3)
	assert.Equal(t, Diagnosis{Code: "I10", Name: "hypertension"}, diags[0])
	assert.Equal(t, Diagnosis{Code: "E11.9", Name: "diabetes"}, diags[1])
	assert.Equal(t, Diagnosis{Code: "J45", Name: ""}, diags[2])
}

func TestDischargeAddedVersusUpdated(t *testing.T) {
	t.Run("first discharge reported as added", func(t *testing.T) {
		e := NewPatientEpisode()
		e.ApplySnapshot(Payload{
			FieldPatientID: "P1",
			FieldEpisodeID: "E1",
		})
		e.ApplyUpdate(Payload{
			FieldPatientID:       "P1",
			FieldEpisodeID:       "E1",
			FieldDischargeTime:   "2026-08-20 10:00:00",
			FieldDischargeStatus: "recovered",
		})

		summary := e.ChangeSummary()
		assert.Contains(t, summary, "discharge information added")
		assert.NotContains(t, summary, "discharge information updated")
	})

	t.Run("later correction reported as updated", func(t *testing.T) {
		e := NewPatientEpisode()
		e.ApplySnapshot(Payload{
			FieldPatientID:     "P1",
			FieldEpisodeID:     "E1",
			FieldDischargeTime: "2026-08-20 10:00:00",
		})
		e.ApplyUpdate(Payload{
			FieldPatientID:     "P1",
			FieldEpisodeID:     "E1",
			FieldDischargeTime: "2026-08-20 12:30:00",
		})

		summary := e.ChangeSummary()
		assert.Contains(t, summary, "discharge information updated (dischargeTime)")
		assert.NotContains(t, summary, "discharge information added")
	})
}

func TestSexNormalization(t *testing.T) {
	e := NewPatientEpisode()
	e.ApplySnapshot(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldSex: "男"})
	assert.Equal(t, "M", e.Sex)

	e.ApplyUpdate(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldSex: "男"})
	assert.False(t, e.HasChanges(), "same sex value after normalization must not register a delta")

	e.ApplyUpdate(Payload{FieldPatientID: "P1", FieldEpisodeID: "E1", FieldSex: "女"})
	assert.Equal(t, "F", e.Sex)
	assert.True(t, e.HasChanges())
}

func TestIdenticalUpdateProducesNoChanges(t *testing.T) {
	snapshot := Payload{
		FieldPatientID:       "P1",
		FieldEpisodeID:       "E1",
		FieldName:            "Zhang",
		FieldOperationID:     "OP1",
		FieldOperationName:   "appendectomy",
		FieldAdmissionTime:   "2026-08-10 08:00:00",
		FieldDischargeTime:   "2026-08-20 10:00:00",
		FieldDischargeStatus: "recovered",
	}

	e := NewPatientEpisode()
	e.ApplySnapshot(snapshot)
	e.ApplyUpdate(snapshot)

	assert.False(t, e.HasChanges())
	assert.Empty(t, e.ChangeSummary())
}
