package model

import (
	"fmt"
	"strings"
)

// Fragment is one raw record as received from the registry: a single procedure
// of an episode, or an undifferentiated episode snapshot for sources that do
// not split procedures into discrete records.
type Fragment struct {
	PatientID   string
	EpisodeID   string
	OperationID string // empty for single-record sources
	// AdmissionTime and SourceUpdate are raw registry timestamps
	// (ClinicalTimeLayout); kept as strings because the format sorts
	// lexicographically and the registry occasionally truncates to dates.
	AdmissionTime string
	SourceUpdate  string
	Payload       Payload
}

// FragmentFromPayload builds a Fragment from a decoded registry record.
// The record-level "total" property is a page artifact, not patient data, and
// is stripped before the payload is staged.
func FragmentFromPayload(p Payload) (*Fragment, error) {
	patientID := p.Get(FieldPatientID)
	episodeID := p.Get(FieldEpisodeID)
	if patientID == "" || episodeID == "" {
		return nil, fmt.Errorf("record lacks patient/episode identity (patient=%q, episode=%q)", patientID, episodeID)
	}
	delete(p, FieldTotal)

	update := p.Get(FieldUpdateTime)
	if update == "" {
		// Fall back to the procedure date when the registry omits an
		// explicit update timestamp.
		update = p.Get(FieldOperationDate)
	}

	return &Fragment{
		PatientID:     patientID,
		EpisodeID:     episodeID,
		OperationID:   p.Get(FieldOperationID),
		AdmissionTime: p.Get(FieldAdmissionTime),
		SourceUpdate:  update,
		Payload:       p,
	}, nil
}

// EpisodeKey identifies the episode this fragment belongs to.
func (f *Fragment) EpisodeKey() string {
	return f.PatientID + "/" + f.EpisodeID
}

// IdentityKey uniquely identifies the fragment across fetch cycles.
func (f *Fragment) IdentityKey() string {
	if f.OperationID == "" {
		return f.EpisodeKey()
	}
	return f.EpisodeKey() + "/" + f.OperationID
}

func (f *Fragment) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "patient %s, episode %s", f.PatientID, f.EpisodeID)
	if f.OperationID != "" {
		fmt.Fprintf(&b, ", operation %s", f.OperationID)
	}
	return b.String()
}
