package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PatientEpisode is the consolidated in-memory aggregate for one hospital
// episode, built by merging every staged fragment that shares the episode key.
// It is rebuilt transiently on every reconcile pass and never persisted.
//
// Change tracking is a two-phase API: ApplySnapshot populates the aggregate
// from a previously published payload without tracking, ApplyUpdate folds in
// current payloads and records the prior value of every field that differs.
type PatientEpisode struct {
	PatientID           string
	MedicalRecordNumber string
	EpisodeID           string
	VisitNumber         string
	UpdateTime          string

	Name          string
	Sex           string
	BirthDate     string
	Age           string
	Ethnicity     string
	Nationality   string
	IDCard        string
	IDCardType    string
	Phone         string
	Address       string
	MaritalStatus string
	Profession    string
	ContactName   string
	Relation      string
	ContactPhone  string
	DrugAllergy   string

	AdmissionTime       string
	AdmissionDepartment string
	AdmissionWard       string
	AdmissionDiagnosis  string
	HospitalAdmission   string
	HospitalStayCount   string
	ActualHospitalDays  string
	Doctor              string
	ResponsibleNurse    string
	Note                string

	DischargeTime         string
	DischargeDepartment   string
	DischargeWard         string
	DischargeStatus       string
	DischargeSituation    string
	DischargeInstructions string

	MainDiagnosisCode   string
	MainDiagnosis       string
	OtherDiagnosisCodes string
	OtherDiagnoses      string

	procedures []*Procedure
	procIndex  map[string]int

	changes      map[string]string // field -> previous value
	hadDischarge bool
}

// NewPatientEpisode returns an empty aggregate.
func NewPatientEpisode() *PatientEpisode {
	return &PatientEpisode{
		procIndex: make(map[string]int),
		changes:   make(map[string]string),
	}
}

// ApplySnapshot populates the episode from a payload without recording
// deltas. Used when rebuilding the last successfully published state.
func (e *PatientEpisode) ApplySnapshot(p Payload) {
	e.apply(p, false)
}

// ApplyUpdate folds a current payload into the episode and records the prior
// value of every field whose value differs (empty-normalized comparison).
func (e *PatientEpisode) ApplyUpdate(p Payload) {
	if !e.hadDischarge {
		e.hadDischarge = e.DischargeTime != ""
	}
	e.apply(p, true)
}

func (e *PatientEpisode) apply(p Payload, track bool) {
	// Identity fields never produce deltas.
	if v := p.Get(FieldPatientID); v != "" {
		e.PatientID = v
	}
	if v := p.Get(FieldEpisodeID); v != "" {
		e.EpisodeID = v
	}

	for _, field := range episodeFieldNames {
		if v, ok := p[field]; ok {
			episodeSetters[field](e, v, track)
		}
	}
	e.applyProcedures(p, track)
}

func (e *PatientEpisode) applyProcedures(p Payload, track bool) {
	if opID := p.Get(FieldOperationID); opID != "" {
		// Discrete procedure record: one fragment, one procedure.
		proc := e.findOrCreateProcedure(opID, track)
		for _, field := range procedureFieldNames {
			if v, ok := p[field]; ok {
				procedureSetters[field](proc, v, track)
			}
		}
		return
	}

	// Delimited encoding: every procedure field is a comma-joined positional
	// list; entry i of each list belongs to procedure i. Lists of different
	// lengths leave trailing procedures partially populated.
	for _, field := range procedureFieldNames {
		v, ok := p[field]
		if !ok {
			continue
		}
		for ix, item := range SplitList(v) {
			proc := e.findOrCreateProcedure(strconv.Itoa(ix+1), track)
			procedureSetters[field](proc, item, track)
		}
	}
}

func (e *PatientEpisode) findOrCreateProcedure(key string, track bool) *Procedure {
	if ix, ok := e.procIndex[key]; ok {
		return e.procedures[ix]
	}
	proc := newProcedure(key)
	proc.isNew = track
	e.procIndex[key] = len(e.procedures)
	e.procedures = append(e.procedures, proc)
	return proc
}

// Procedures returns the procedures in insertion order.
func (e *PatientEpisode) Procedures() []*Procedure {
	return e.procedures
}

// Procedure returns the procedure with the given key, or nil.
func (e *PatientEpisode) Procedure(key string) *Procedure {
	if ix, ok := e.procIndex[key]; ok {
		return e.procedures[ix]
	}
	return nil
}

// Diagnoses zips the secondary diagnosis code and name lists positionally.
func (e *PatientEpisode) Diagnoses() []Diagnosis {
	codes := SplitList(e.OtherDiagnosisCodes)
	names := SplitList(e.OtherDiagnoses)
	n := len(codes)
	if len(names) > n {
		n = len(names)
	}
	out := make([]Diagnosis, n)
	for i := 0; i < n; i++ {
		if i < len(codes) {
			out[i].Code = codes[i]
		}
		if i < len(names) {
			out[i].Name = names[i]
		}
	}
	return out
}

func (e *PatientEpisode) set(field string, dst *string, value string, track bool) {
	value = strings.TrimSpace(value)
	if track && value != *dst {
		if _, seen := e.changes[field]; !seen {
			e.changes[field] = *dst
		}
	}
	*dst = value
}

// HasChanges reports whether a tracked update modified any field, added a
// procedure, or modified a procedure.
func (e *PatientEpisode) HasChanges() bool {
	if len(e.changes) > 0 {
		return true
	}
	for _, p := range e.procedures {
		if p.IsNew() || p.HasChanges() {
			return true
		}
	}
	return false
}

// dischargeFields drive the separate classification of discharge deltas:
// downstream notification routing treats a first-time discharge as a higher
// priority event than a later correction.
var dischargeFields = map[string]bool{
	FieldDischargeTime:         true,
	FieldDischargeDepartment:   true,
	FieldDischargeWard:         true,
	FieldDischargeStatus:       true,
	FieldDischargeSituation:    true,
	FieldDischargeInstructions: true,
}

// ChangeSummary renders a human-readable description of the tracked deltas,
// or "" when nothing changed.
func (e *PatientEpisode) ChangeSummary() string {
	var parts []string

	var added, updated []string
	for _, p := range e.procedures {
		switch {
		case p.IsNew():
			added = append(added, p.Key)
		case p.HasChanges():
			updated = append(updated, fmt.Sprintf("%s: %s", p.Key, strings.Join(p.ChangedFields(), ", ")))
		}
	}
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("new procedure added (%s)", strings.Join(added, ", ")))
	}
	for _, u := range updated {
		parts = append(parts, fmt.Sprintf("procedure updated (%s)", u))
	}

	var discharge, other []string
	for field := range e.changes {
		if dischargeFields[field] {
			discharge = append(discharge, field)
		} else {
			other = append(other, field)
		}
	}
	sort.Strings(discharge)
	sort.Strings(other)

	if len(discharge) > 0 {
		if !e.hadDischarge && e.DischargeTime != "" {
			parts = append(parts, "discharge information added")
		} else {
			parts = append(parts, fmt.Sprintf("discharge information updated (%s)", strings.Join(discharge, ", ")))
		}
	}
	if len(other) > 0 {
		parts = append(parts, fmt.Sprintf("patient information updated (%s)", strings.Join(other, ", ")))
	}

	return strings.Join(parts, "; ")
}

// PreviousValue returns the prior value of a changed episode field.
func (e *PatientEpisode) PreviousValue(field string) (string, bool) {
	v, ok := e.changes[field]
	return v, ok
}

// episodeSetters is the explicit field-mapping table from payload field names
// onto episode mutators. Dispatch never uses reflection.
var episodeSetters = map[string]func(e *PatientEpisode, v string, track bool){
	FieldMedicalRecordNumber: func(e *PatientEpisode, v string, track bool) { e.set(FieldMedicalRecordNumber, &e.MedicalRecordNumber, v, track) },
	FieldVisitNumber:         func(e *PatientEpisode, v string, track bool) { e.set(FieldVisitNumber, &e.VisitNumber, v, track) },
	FieldUpdateTime:          func(e *PatientEpisode, v string, track bool) { e.set(FieldUpdateTime, &e.UpdateTime, v, track) },
	FieldName:                func(e *PatientEpisode, v string, track bool) { e.set(FieldName, &e.Name, v, track) },
	FieldSex:                 func(e *PatientEpisode, v string, track bool) { e.set(FieldSex, &e.Sex, normalizeSex(v), track) },
	FieldBirthDate:           func(e *PatientEpisode, v string, track bool) { e.set(FieldBirthDate, &e.BirthDate, v, track) },
	FieldAge:                 func(e *PatientEpisode, v string, track bool) { e.set(FieldAge, &e.Age, v, track) },
	FieldEthnicity:           func(e *PatientEpisode, v string, track bool) { e.set(FieldEthnicity, &e.Ethnicity, v, track) },
	FieldNationality:         func(e *PatientEpisode, v string, track bool) { e.set(FieldNationality, &e.Nationality, v, track) },
	FieldIDCard:              func(e *PatientEpisode, v string, track bool) { e.set(FieldIDCard, &e.IDCard, v, track) },
	FieldIDCardType:          func(e *PatientEpisode, v string, track bool) { e.set(FieldIDCardType, &e.IDCardType, v, track) },
	FieldPhone:               func(e *PatientEpisode, v string, track bool) { e.set(FieldPhone, &e.Phone, v, track) },
	FieldAddress:             func(e *PatientEpisode, v string, track bool) { e.set(FieldAddress, &e.Address, v, track) },
	FieldMaritalStatus:       func(e *PatientEpisode, v string, track bool) { e.set(FieldMaritalStatus, &e.MaritalStatus, v, track) },
	FieldProfession:          func(e *PatientEpisode, v string, track bool) { e.set(FieldProfession, &e.Profession, v, track) },
	FieldContactName:         func(e *PatientEpisode, v string, track bool) { e.set(FieldContactName, &e.ContactName, v, track) },
	FieldRelation:            func(e *PatientEpisode, v string, track bool) { e.set(FieldRelation, &e.Relation, v, track) },
	FieldContactPhone:        func(e *PatientEpisode, v string, track bool) { e.set(FieldContactPhone, &e.ContactPhone, v, track) },
	FieldDrugAllergy:         func(e *PatientEpisode, v string, track bool) { e.set(FieldDrugAllergy, &e.DrugAllergy, v, track) },

	FieldAdmissionTime:       func(e *PatientEpisode, v string, track bool) { e.set(FieldAdmissionTime, &e.AdmissionTime, v, track) },
	FieldAdmissionDepartment: func(e *PatientEpisode, v string, track bool) { e.set(FieldAdmissionDepartment, &e.AdmissionDepartment, v, track) },
	FieldAdmissionWard:       func(e *PatientEpisode, v string, track bool) { e.set(FieldAdmissionWard, &e.AdmissionWard, v, track) },
	FieldAdmissionDiagnosis:  func(e *PatientEpisode, v string, track bool) { e.set(FieldAdmissionDiagnosis, &e.AdmissionDiagnosis, v, track) },
	FieldHospitalAdmission:   func(e *PatientEpisode, v string, track bool) { e.set(FieldHospitalAdmission, &e.HospitalAdmission, v, track) },
	FieldHospitalStayCount:   func(e *PatientEpisode, v string, track bool) { e.set(FieldHospitalStayCount, &e.HospitalStayCount, v, track) },
	FieldActualHospitalDays:  func(e *PatientEpisode, v string, track bool) { e.set(FieldActualHospitalDays, &e.ActualHospitalDays, v, track) },
	FieldDoctor:              func(e *PatientEpisode, v string, track bool) { e.set(FieldDoctor, &e.Doctor, v, track) },
	FieldResponsibleNurse:    func(e *PatientEpisode, v string, track bool) { e.set(FieldResponsibleNurse, &e.ResponsibleNurse, v, track) },
	FieldNote:                func(e *PatientEpisode, v string, track bool) { e.set(FieldNote, &e.Note, v, track) },

	FieldDischargeTime:         func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeTime, &e.DischargeTime, v, track) },
	FieldDischargeDepartment:   func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeDepartment, &e.DischargeDepartment, v, track) },
	FieldDischargeWard:         func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeWard, &e.DischargeWard, v, track) },
	FieldDischargeStatus:       func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeStatus, &e.DischargeStatus, v, track) },
	FieldDischargeSituation:    func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeSituation, &e.DischargeSituation, v, track) },
	FieldDischargeInstructions: func(e *PatientEpisode, v string, track bool) { e.set(FieldDischargeInstructions, &e.DischargeInstructions, v, track) },

	FieldMainDiagnosisCode:   func(e *PatientEpisode, v string, track bool) { e.set(FieldMainDiagnosisCode, &e.MainDiagnosisCode, v, track) },
	FieldMainDiagnosis:       func(e *PatientEpisode, v string, track bool) { e.set(FieldMainDiagnosis, &e.MainDiagnosis, v, track) },
	FieldOtherDiagnosisCodes: func(e *PatientEpisode, v string, track bool) { e.set(FieldOtherDiagnosisCodes, &e.OtherDiagnosisCodes, v, track) },
	FieldOtherDiagnoses:      func(e *PatientEpisode, v string, track bool) { e.set(FieldOtherDiagnoses, &e.OtherDiagnoses, v, track) },
}

// episodeFieldNames is the stable apply order for episode fields.
var episodeFieldNames = func() []string {
	names := make([]string, 0, len(episodeSetters))
	for name := range episodeSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

func normalizeSex(v string) string {
	switch strings.TrimSpace(v) {
	case "":
		return ""
	case "0", "男", "m", "M":
		return "M"
	default:
		return "F"
	}
}
